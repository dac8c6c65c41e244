// Package config loads midicomb's YAML configuration files: the
// scheduler's demand/capacity/padding table, the instrument→GM program
// table, and the chord-progression fold→unfold expansion table.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig mirrors cfg/midicomb.yaml: {demands: {role: int},
// capacity: int, padding: int}.
type SchedulerConfig struct {
	Demands map[string]int `yaml:"demands"`
	Capacity int           `yaml:"capacity"`
	Padding  int           `yaml:"padding"`
}

// DefaultSchedulerConfig returns the nominal demand/capacity/padding
// values, used when no config file is supplied.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Demands: map[string]int{
			"main_melody":   3,
			"sub_melody":    3,
			"riff":          3,
			"accompaniment": 2,
			"pad":           1,
			"bass":          1,
		},
		Capacity: 6,
		Padding:  4000,
	}
}

// LoadSchedulerConfig reads and parses cfg/midicomb.yaml-shaped content.
func LoadSchedulerConfig(path string) (SchedulerConfig, error) {
	var cfg SchedulerConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Capacity <= 0 {
		return cfg, fmt.Errorf("config: %s: capacity must be positive", path)
	}
	return cfg, nil
}

// InstrumentPrograms maps symbolic instrument names to GM-1 program
// numbers (0..127), loaded from cfg/inst_to_prog.yaml.
type InstrumentPrograms map[string]uint8

// ErrProgramUnknown is returned when an instrument has no entry in the
// program table.
var ErrProgramUnknown = fmt.Errorf("config: instrument not found in program table")

// LoadInstrumentPrograms reads cfg/inst_to_prog.yaml.
func LoadInstrumentPrograms(path string) (InstrumentPrograms, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var table InstrumentPrograms
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return table, nil
}

// ProgramOf looks up the GM-1 program number for instrument.
func (t InstrumentPrograms) ProgramOf(instrument string) (uint8, error) {
	program, ok := t[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProgramUnknown, instrument)
	}
	return program, nil
}

// ChordExpansions maps a canonical dashed chord progression (e.g.
// "Am-C-G-Dm-Am-C-G-D") to its per-slot expanded form, loaded from
// cfg/chord_progressions.yaml. Consumed by the (out of scope) upstream
// generation path; kept here because the catalog adaptor shares the same
// canonicalization logic in the other direction (see catalog.Canonicalize).
type ChordExpansions map[string]string

// LoadChordExpansions reads cfg/chord_progressions.yaml.
func LoadChordExpansions(path string) (ChordExpansions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var table ChordExpansions
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return table, nil
}

// Unfold returns the expanded, per-slot form of a canonical progression.
func (t ChordExpansions) Unfold(progression string) (string, bool) {
	v, ok := t[progression]
	return v, ok
}
