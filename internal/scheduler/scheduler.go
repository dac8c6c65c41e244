// Package scheduler decides when each sample starts on a shared timeline,
// whether it repeats, and where the repeated copy starts, subject to
// per-role non-overlap, cumulative capacity, align-on-overlap, and
// isolation-padding constraints, minimizing makespan.
//
// The reference system solves this as a CP-SAT model. No CP-SAT or general
// constraint-programming library exists anywhere in the dependency surface
// this module was grounded on (see DESIGN.md), so the Solver interface
// below is implemented by a branch-and-bound search over chord groupings
// instead of a vendored solver binding. Model construction is not coupled
// to call sites: a CP-SAT or MILP backend could implement Solver without
// touching callers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// Status mirrors a CP-SAT-style solve outcome: whether the returned
// solution is proven optimal, merely feasible (the search budget ran out
// before the space was exhausted), or the problem could not be solved at
// all.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusModelInvalid
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusModelInvalid:
		return "model_invalid"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrInfeasible, ErrModelInvalid, and ErrAborted are the error-kind
// sentinels callers can match against with errors.Is.
var (
	ErrInfeasible   = errors.New("scheduler: constraints admit no feasible schedule")
	ErrModelInvalid = errors.New("scheduler: invalid model")
	ErrAborted      = errors.New("scheduler: aborted before a feasible solution was found")
)

// Track is one (role, index) scheduling unit: a sample's primary playback
// slot, and (if RepeatAllowed) an optional repeat slot the solver may or
// may not select.
type Track struct {
	Role          string
	Index         int
	Duration      int
	Demand        int
	RepeatAllowed bool // false for riff
}

// Problem is the scheduler's input: the tracks to place, the cumulative
// capacity, and the isolation-padding constant.
type Problem struct {
	Tracks   []Track
	Capacity int
	Padding  int
}

// Assignment is the scheduler's per-track output: its primary start, and,
// if Repeated, the start of its repeated copy.
type Assignment struct {
	Role     string
	Index    int
	Start    int
	Repeated bool
	StartOpt int
}

// Solution is the outcome of a Solve call.
type Solution struct {
	Status      Status
	Assignments []Assignment
	Makespan    int
}

// Solver abstracts model construction and solving so that an alternative
// backend (a true CP-SAT binding, a MILP solver, a different search
// strategy) can be substituted without changing callers.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, error)
}

// ChordSolver is the search-based Solver implementation: it searches,
// by branch-and-bound, over ways to pack tracks into "chords" (groups of
// simultaneously-starting tracks, at most one per role, total demand
// within capacity), evaluating each complete grouping under its
// padding-optimal serial ordering, and keeps the grouping with the
// smallest makespan it can prove or afford to find. See DESIGN.md for the
// correctness argument and the ordering-optimality derivation.
//
// MaxNodes bounds the number of search nodes whether or not ctx carries a
// deadline; zero uses a built-in default. The search also stops once ctx
// expires. Either way the best grouping found so far is returned as
// StatusFeasible (or StatusAborted if none was found yet).
type ChordSolver struct {
	MaxNodes int
}

const defaultMaxNodes = 200000

// Solve searches for a makespan-minimizing schedule. It is deterministic:
// branch order depends only on Problem, never on wall-clock timing, so two
// calls with the same input and an uncapped budget return the same
// solution; a capped or cancelled search still explores nodes in the same
// order, so a truncated run is reproducible too given the same real-time
// budget.
func (cs ChordSolver) Solve(ctx context.Context, p Problem) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return Solution{Status: StatusAborted}, fmt.Errorf("%w: %v", ErrAborted, err)
	}

	items, err := buildItems(p.Tracks)
	if err != nil {
		return Solution{Status: StatusInfeasible}, err
	}
	for _, it := range items {
		if it.demand > p.Capacity {
			return Solution{Status: StatusInfeasible}, fmt.Errorf("%w: role %q demand %d exceeds capacity %d", ErrInfeasible, it.role, it.demand, p.Capacity)
		}
	}

	maxNodes := cs.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}

	s := &search{ctx: ctx, items: items, capacity: p.Capacity, padding: p.Padding, maxNodes: maxNodes}
	s.run()

	if s.bestAssign == nil {
		if s.truncated {
			return Solution{Status: StatusAborted}, fmt.Errorf("%w: search budget exhausted before any feasible grouping was found", ErrAborted)
		}
		return Solution{Status: StatusInfeasible}, fmt.Errorf("%w: no feasible chord grouping exists", ErrInfeasible)
	}

	chords := rebuild(items, s.bestAssign)
	assignments, makespan := layout(p.Tracks, chords, p.Padding)

	status := StatusOptimal
	if s.truncated {
		status = StatusFeasible
	}
	return Solution{Status: status, Assignments: assignments, Makespan: makespan}, nil
}

// item is one scheduling unit fed to the packer: either a track's
// mandatory primary, or one of the floor(N/2) selected repeat copies.
type item struct {
	role     string
	index    int
	duration int
	demand   int
	repeat   bool
}

// buildItems expands Problem.Tracks into the primary-plus-repeat item set:
// the repeat budget is floor(N/2), riff excluded. Repeat candidates are
// chosen in the caller's track order, which is already role-then-index
// order, so the result is reproducible.
func buildItems(tracks []Track) ([]item, error) {
	n := len(tracks)
	items := make([]item, 0, n)
	for _, t := range tracks {
		items = append(items, item{role: t.Role, index: t.Index, duration: t.Duration, demand: t.Demand})
	}

	budget := n / 2
	var eligible []Track
	for _, t := range tracks {
		if t.RepeatAllowed {
			eligible = append(eligible, t)
		}
	}
	if budget > len(eligible) {
		return nil, fmt.Errorf("%w: repeat budget %d exceeds %d repeat-eligible tracks", ErrInfeasible, budget, len(eligible))
	}
	for i := 0; i < budget; i++ {
		t := eligible[i]
		items = append(items, item{role: t.Role, index: t.Index, duration: t.Duration, demand: t.Demand, repeat: true})
	}
	return items, nil
}

// chord is a set of items assigned the same start time: at most one per
// role, total demand within capacity.
type chord struct {
	items    []item
	roles    map[string]bool
	demand   int
	duration int // max duration among its items
}

// search performs branch-and-bound over assignments of items to chords.
// State is the partial assignment of items[0:len(assign)] to chord
// indices; branching tries, for the next item, every existing compatible
// chord (in the order chords were opened) and then a brand-new chord.
//
// The objective evaluated at each leaf is the closed-form makespan of the
// completed grouping under its padding-optimal ordering (see
// evalMakespan), not a simulated layout: chord order never needs to be
// searched separately because, for any fixed partition into chords, the
// ordering that minimizes total isolation padding is known in closed form
// (group every multi-item chord contiguously; see DESIGN.md).
type search struct {
	ctx      context.Context
	items    []item
	capacity int
	padding  int
	maxNodes int

	nodes     int
	truncated bool

	assign     []int
	chords     []*chord
	best       int
	bestAssign []int
}

func (s *search) run() {
	s.best = -1
	s.assign = make([]int, 0, len(s.items))
	s.descend(0)
}

// descend tries to place items[i] into the search tree. It returns false
// once the node/time budget is exhausted, signalling the caller to unwind
// without exploring further siblings.
func (s *search) descend(i int) bool {
	s.nodes++
	if s.nodes%512 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.truncated = true
			return false
		}
	}
	if s.nodes > s.maxNodes {
		s.truncated = true
		return false
	}

	if i == len(s.items) {
		ms := evalMakespan(s.chords, s.padding)
		if s.best < 0 || ms < s.best {
			s.best = ms
			s.bestAssign = append([]int(nil), s.assign...)
		}
		return true
	}

	// Lower bound: sum of already-committed chord durations never
	// decreases as more items are placed, so it safely bounds the final
	// makespan from below regardless of how the rest are assigned.
	if s.best >= 0 && sumDurations(s.chords) >= s.best {
		return true
	}

	it := s.items[i]

	for ci, c := range s.chords {
		if c.roles[it.role] || c.demand+it.demand > s.capacity {
			continue
		}
		prevDuration := c.duration
		c.items = append(c.items, it)
		c.roles[it.role] = true
		c.demand += it.demand
		if it.duration > c.duration {
			c.duration = it.duration
		}
		s.assign = append(s.assign, ci)

		ok := s.descend(i + 1)

		s.assign = s.assign[:len(s.assign)-1]
		c.items = c.items[:len(c.items)-1]
		delete(c.roles, it.role)
		c.demand -= it.demand
		c.duration = prevDuration
		if !ok {
			return false
		}
	}

	// Open a new chord.
	newChord := &chord{items: []item{it}, roles: map[string]bool{it.role: true}, demand: it.demand, duration: it.duration}
	s.chords = append(s.chords, newChord)
	s.assign = append(s.assign, len(s.chords)-1)

	ok := s.descend(i + 1)

	s.assign = s.assign[:len(s.assign)-1]
	s.chords = s.chords[:len(s.chords)-1]
	if !ok {
		return false
	}

	return true
}

func sumDurations(chords []*chord) int {
	total := 0
	for _, c := range chords {
		total += c.duration
	}
	return total
}

// evalMakespan computes the makespan of a completed chord grouping under
// its padding-optimal ordering without simulating a layout: arranging all
// multi-item chords contiguously and the singleton chords around them
// costs exactly one padding gap per singleton chord (or, if every chord is
// a singleton, one gap per boundary between them). See DESIGN.md for the
// proof that no ordering does better. padding must be the Problem's real
// padding value: scaling gaps by anything else would not just mis-size
// the result, it could flip which of two candidate groupings looks better.
func evalMakespan(chords []*chord, padding int) int {
	total := sumDurations(chords)
	multi, single := 0, 0
	for _, c := range chords {
		if len(c.items) > 1 {
			multi++
		} else {
			single++
		}
	}
	var gaps int
	switch {
	case single == 0:
		gaps = 0
	case multi == 0:
		gaps = single - 1
	default:
		gaps = single
	}
	return total + gaps*padding
}

// rebuild replays a winning assign slice (one chord index per item, in
// item order) into concrete chords, so Solve can hand them to layout with
// the real padding value.
func rebuild(items []item, assign []int) []*chord {
	var chords []*chord
	for idx, ci := range assign {
		for ci >= len(chords) {
			chords = append(chords, &chord{roles: map[string]bool{}})
		}
		c := chords[ci]
		it := items[idx]
		c.items = append(c.items, it)
		c.roles[it.role] = true
		c.demand += it.demand
		if it.duration > c.duration {
			c.duration = it.duration
		}
	}
	return orderForLayout(chords)
}

// orderForLayout arranges chords for layout's serial pass: every
// multi-item chord first (in the order they were created), then every
// singleton chord (likewise). This is the ordering evalMakespan assumes
// when comparing groupings, so it must be used for the final layout too.
func orderForLayout(chords []*chord) []*chord {
	ordered := make([]*chord, 0, len(chords))
	for _, c := range chords {
		if len(c.items) > 1 {
			ordered = append(ordered, c)
		}
	}
	for _, c := range chords {
		if len(c.items) == 1 {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// layout places chords serially on the timeline (chord i+1 starts no
// earlier than chord i's longest member ends), inserting Problem.Padding
// at any boundary touching a singleton ("alone") chord, and returns the
// per-track assignments plus the overall makespan.
func layout(tracks []Track, chords []*chord, padding int) ([]Assignment, int) {
	type trackKey struct {
		role  string
		index int
	}
	type slot struct {
		start    int
		hasOpt   bool
		startOpt int
	}
	slots := make(map[trackKey]*slot)
	key := func(role string, index int) trackKey { return trackKey{role, index} }

	pos := 0
	makespan := 0
	for i, c := range chords {
		start := pos
		for _, it := range c.items {
			k := key(it.role, it.index)
			s, ok := slots[k]
			if !ok {
				s = &slot{}
				slots[k] = s
			}
			if it.repeat {
				s.hasOpt = true
				s.startOpt = start
			} else {
				s.start = start
			}
		}
		end := start + c.duration
		if end > makespan {
			makespan = end
		}

		alone := len(c.items) == 1
		nextAlone := i+1 < len(chords) && len(chords[i+1].items) == 1
		gap := 0
		if alone || nextAlone {
			gap = padding
		}
		pos = end + gap
	}

	assignments := make([]Assignment, 0, len(tracks))
	for _, t := range tracks {
		s := slots[key(t.Role, t.Index)]
		a := Assignment{Role: t.Role, Index: t.Index}
		if s != nil {
			a.Start = s.start
			a.Repeated = s.hasOpt
			a.StartOpt = s.startOpt
		}
		assignments = append(assignments, a)
	}
	return assignments, makespan
}
