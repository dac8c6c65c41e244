// Package catalog is the sample catalog adaptor: a tabular metadata store
// over MIDI files, filtered by musical context to produce one
// representative sample per role, then topped up until the selection holds
// as many samples as the catalog has distinct roles, subject to "no
// duplicates" and "at most one riff".
package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/aubade/midicomb/internal/config"
	"github.com/aubade/midicomb/internal/musicctx"
	"github.com/aubade/midicomb/internal/sample"
)

// ErrNoMatch is returned when no catalog row satisfies the seven-way
// context filter.
var ErrNoMatch = errors.New("catalog: no sample matches the given context")

// Row is one sample-metadata row, after the column renames and chord
// progression canonicalization described in csv.go.
type Row struct {
	ID               string
	Split            string
	Key              string
	ChordProgression string
	Instrument       string
	Rhythm           string
	BPM              int
	TimeSignature    string
	NumMeasures      int
	Genre            string
	Role             sample.Role
	PitchRange       string
	MinVelocity      int
	MaxVelocity      int
}

func (r Row) matches(mc musicctx.Context) bool {
	return r.BPM == mc.BPM &&
		r.Key == mc.Key &&
		r.TimeSignature == mc.TimeSignature &&
		r.NumMeasures == mc.NumMeasures &&
		r.Genre == mc.Genre &&
		r.Rhythm == mc.Rhythm &&
		r.ChordProgression == mc.ChordProgression
}

// Dataset is the in-memory catalog: all rows, the instrument→program
// table needed to preprocess a chosen row into a Sample, the directory
// raw MIDI files live under, and the run's PRNG.
type Dataset struct {
	rows     []Row
	programs config.InstrumentPrograms
	midiDir  string
	rng      *rand.Rand
	allRoles []sample.Role // distinct roles across the whole catalog, canonical order
}

// NewDataset builds a Dataset from already-loaded rows. midiDir is the
// directory raw MIDI files live under (e.g.
// dataset/commu_midi/{split}/raw/{id}.mid uses midiDir="dataset/commu_midi").
func NewDataset(rows []Row, programs config.InstrumentPrograms, midiDir string, seed int64) *Dataset {
	seen := make(map[sample.Role]bool)
	var roles []sample.Role
	for _, role := range sample.Roles {
		for _, r := range rows {
			if r.Role == role {
				if !seen[role] {
					seen[role] = true
					roles = append(roles, role)
				}
				break
			}
		}
	}
	return &Dataset{
		rows:     rows,
		programs: programs,
		midiDir:  midiDir,
		rng:      rand.New(rand.NewSource(seed)),
		allRoles: roles,
	}
}

// SampleMidis runs the selection algorithm: context filter, one-per-role
// seed, top-up (excluding riff, no duplicates), then materialization into
// preprocessed samples with a fresh, per-call channel counter.
func (d *Dataset) SampleMidis(mc musicctx.Context) (map[sample.Role][]*sample.Sample, error) {
	chosen, err := d.selectRows(mc)
	if err != nil {
		return nil, err
	}
	return materialize(chosen, d.midiDir, d.programs)
}

// selectRows implements the row-selection half of SampleMidis (context
// filter, one-per-role seed, top-up), independent of materializing rows
// into Samples, so it can be tested without touching disk.
func (d *Dataset) selectRows(mc musicctx.Context) ([]Row, error) {
	var query []Row
	for _, r := range d.rows {
		if r.matches(mc) {
			query = append(query, r)
		}
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: bpm=%d key=%s time_signature=%s num_measures=%d genre=%s rhythm=%s chord_progression=%s",
			ErrNoMatch, mc.BPM, mc.Key, mc.TimeSignature, mc.NumMeasures, mc.Genre, mc.Rhythm, mc.ChordProgression)
	}

	byRole := make(map[sample.Role][]Row)
	var rolesInQuery []sample.Role
	for _, role := range sample.Roles {
		var rows []Row
		for _, r := range query {
			if r.Role == role {
				rows = append(rows, r)
			}
		}
		if len(rows) > 0 {
			byRole[role] = rows
			rolesInQuery = append(rolesInQuery, role)
		}
	}

	// One-per-role seed.
	chosen := make([]Row, 0, len(rolesInQuery))
	chosenIDs := make(map[string]bool)
	for _, role := range rolesInQuery {
		rows := byRole[role]
		row := rows[d.rng.Intn(len(rows))]
		chosen = append(chosen, row)
		chosenIDs[row.ID] = true
	}

	// Topping up: at most one riff, no duplicates. Candidates are
	// recomputed per role on every iteration (rather than the reference
	// implementation's sample-then-discard retry), which bounds the loop
	// even when a role's rows are all already chosen — the reference's
	// retry-forever-on-a-single-row-role case never removes that role
	// from the valid set, so it can spin; removing it as soon as it has
	// nothing left to offer is the only change (see DESIGN.md).
	var valid []sample.Role
	for _, role := range rolesInQuery {
		if role != sample.Riff {
			valid = append(valid, role)
		}
	}

	for len(chosen) < len(d.allRoles) && len(valid) > 0 {
		idx := d.rng.Intn(len(valid))
		role := valid[idx]

		var candidates []Row
		for _, r := range byRole[role] {
			if !chosenIDs[r.ID] {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			valid = append(valid[:idx], valid[idx+1:]...)
			continue
		}
		row := candidates[d.rng.Intn(len(candidates))]
		chosen = append(chosen, row)
		chosenIDs[row.ID] = true
	}

	return chosen, nil
}

// materialize loads each chosen row as a preprocessed Sample, assigning
// channels from a fresh ChannelAssigner, and groups the result by role in
// insertion order.
func materialize(chosen []Row, midiDir string, programs config.InstrumentPrograms) (map[sample.Role][]*sample.Sample, error) {
	assigner := &sample.ChannelAssigner{}
	roleToMidis := make(map[sample.Role][]*sample.Sample)
	for _, role := range sample.Roles {
		for _, row := range chosen {
			if row.Role != role {
				continue
			}
			path := filepath.Join(midiDir, row.Split, "raw", row.ID+".mid")
			s, err := sample.Load(path, role, row.Instrument, assigner.Next(), programs)
			if err != nil {
				return nil, err
			}
			roleToMidis[role] = append(roleToMidis[role], s)
		}
	}
	return roleToMidis, nil
}
