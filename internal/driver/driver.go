// Package driver orchestrates one end-to-end run: obtain samples for a
// musical context, schedule them, shift each into place, merge the
// results, and write the final MIDI file.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aubade/midicomb/internal/config"
	"github.com/aubade/midicomb/internal/midifile"
	"github.com/aubade/midicomb/internal/musicctx"
	"github.com/aubade/midicomb/internal/sample"
	"github.com/aubade/midicomb/internal/scheduler"
)

// SampleProducer abstracts "given a musical context, produce typed MIDI
// samples": *catalog.Dataset implements it, and so could a
// neural-generation front end, without the driver changing.
type SampleProducer interface {
	SampleMidis(mc musicctx.Context) (map[sample.Role][]*sample.Sample, error)
}

// Result is a successful run's output.
type Result struct {
	Path     string
	Makespan int
}

// Run performs one full pipeline pass: catalog → scheduler → shift/merge
// → write. outDir must already encode the run's timestamp; Run ensures it
// exists. solveTimeout is the wall-clock budget handed to the solver;
// zero means no deadline.
func Run(ctx context.Context, producer SampleProducer, solver scheduler.Solver, schedCfg config.SchedulerConfig, mc musicctx.Context, outDir string, solveTimeout time.Duration) (*Result, error) {
	roleToSamples, err := producer.SampleMidis(mc)
	if err != nil {
		return nil, err
	}

	var samples []*sample.Sample
	var tracks []scheduler.Track
	for _, role := range sample.Roles {
		for i, s := range roleToSamples[role] {
			duration, err := s.Duration()
			if err != nil {
				return nil, fmt.Errorf("driver: %w", err)
			}
			demand, ok := schedCfg.Demands[string(role)]
			if !ok {
				return nil, fmt.Errorf("driver: no demand configured for role %q", role)
			}
			samples = append(samples, s)
			tracks = append(tracks, scheduler.Track{
				Role:          string(role),
				Index:         i,
				Duration:      duration,
				Demand:        demand,
				RepeatAllowed: role != sample.Riff,
			})
		}
	}

	solveCtx := ctx
	if solveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, solveTimeout)
		defer cancel()
	}

	problem := scheduler.Problem{Tracks: tracks, Capacity: schedCfg.Capacity, Padding: schedCfg.Padding}
	solution, err := solver.Solve(solveCtx, problem)
	if err != nil {
		return nil, err
	}
	if solution.Status != scheduler.StatusOptimal && solution.Status != scheduler.StatusFeasible {
		return nil, fmt.Errorf("driver: solver returned status %s", solution.Status)
	}
	if len(solution.Assignments) != len(samples) {
		return nil, fmt.Errorf("%w: solver returned %d assignments for %d samples", scheduler.ErrModelInvalid, len(solution.Assignments), len(samples))
	}

	var shifted []*midifile.File
	for i, s := range samples {
		a := solution.Assignments[i]
		primary, err := midifile.Shift(s.File, uint32(a.Start))
		if err != nil {
			return nil, fmt.Errorf("driver: shifting %s: %w", s.Instrument, err)
		}
		shifted = append(shifted, primary)
		if a.Repeated {
			repeat, err := midifile.Shift(s.File, uint32(a.StartOpt))
			if err != nil {
				return nil, fmt.Errorf("driver: shifting repeat of %s: %w", s.Instrument, err)
			}
			shifted = append(shifted, repeat)
		}
	}

	merged, err := midifile.Merge(shifted)
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("driver: creating output directory %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, "tune.mid")
	if err := merged.Save(path); err != nil {
		return nil, err
	}

	return &Result{Path: path, Makespan: solution.Makespan}, nil
}
