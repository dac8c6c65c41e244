// Package sample implements the CommuFile data model: a one-track MIDI
// sample derived from a two-track (meta, music) source, tagged with a
// musical role, an instrument, and a globally (per-run) unique MIDI
// channel.
package sample

import (
	"fmt"

	"github.com/aubade/midicomb/internal/config"
	"github.com/aubade/midicomb/internal/midifile"
)

// Role is the musical function of a track.
type Role string

const (
	MainMelody    Role = "main_melody"
	SubMelody     Role = "sub_melody"
	Riff          Role = "riff"
	Accompaniment Role = "accompaniment"
	Pad           Role = "pad"
	Bass          Role = "bass"
)

// Roles is the fixed, ordered domain of roles. Its order is the
// canonical iteration order used everywhere a stable role ordering
// matters: demand lookup, scheduler track construction, and role top-up.
var Roles = []Role{MainMelody, SubMelody, Riff, Accompaniment, Pad, Bass}

// PercussionChannel is the 0-indexed MIDI channel reserved for
// percussion and never assigned to a sample.
const PercussionChannel = 9

// Sample is a preprocessed, one-track MIDI clip (CommuFile).
type Sample struct {
	Role       Role
	Instrument string
	Channel    uint8
	File       *midifile.File
}

// Duration is the sum of the sample's single track's event delta-times.
func (s *Sample) Duration() (int, error) {
	return midifile.Duration(s.File)
}

// ChannelAssigner is per-run state: a monotonically increasing counter
// starting at 0 that skips PercussionChannel. It must be constructed
// fresh for every call to Dataset.SampleMidis; a process-wide counter
// would, in a long-lived process, eventually exceed the 16-channel MIDI
// range.
type ChannelAssigner struct {
	next uint8
}

// Next returns the next channel to assign and advances the counter.
func (c *ChannelAssigner) Next() uint8 {
	if c.next == PercussionChannel {
		c.next++
	}
	ch := c.next
	c.next++
	return ch
}

// Load materializes a catalog row into a preprocessed Sample: it loads
// the raw two-track MIDI file, flattens the meta track into the music
// track, names the track after role, rewrites its program_change to the
// instrument's GM program, and assigns channel.
func Load(path string, role Role, instrument string, channel uint8, programs config.InstrumentPrograms) (*Sample, error) {
	f, err := midifile.Load(path)
	if err != nil {
		return nil, err
	}

	if err := midifile.MoveMeta(f); err != nil {
		return nil, fmt.Errorf("sample: %s: %w", path, err)
	}
	if err := midifile.SetName(f, string(role)); err != nil {
		return nil, fmt.Errorf("sample: %s: %w", path, err)
	}

	program, err := programs.ProgramOf(instrument)
	if err != nil {
		return nil, fmt.Errorf("sample: %s: %w", path, err)
	}
	if err := midifile.SetProgram(f, program); err != nil {
		return nil, fmt.Errorf("sample: %s: %w", path, err)
	}
	if err := midifile.SetChannel(f, channel); err != nil {
		return nil, fmt.Errorf("sample: %s: %w", path, err)
	}

	return &Sample{Role: role, Instrument: instrument, Channel: channel, File: f}, nil
}
