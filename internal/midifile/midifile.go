// Package midifile is the MIDI file model shared by the catalog adaptor
// and the scheduler: a thin layer over gitlab.com/gomidi/midi/v2's smf
// package that adds the handful of operations the rest of midicomb needs
// (meta-track flattening, name/program/channel rewriting, duration
// accounting, time-shifting and merging) while preserving the binary
// events it did not touch.
package midifile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrInvalidMidi is returned when a file does not match the two-track
// (meta, music) shape MoveMeta requires.
var ErrInvalidMidi = errors.New("invalid midi file")

// File wraps an *smf.SMF, embedding the library's SMF struct directly so
// callers can still reach its fields and methods.
type File struct {
	*smf.SMF
}

// Load parses a standard MIDI file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("midifile: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrom(f)
}

// ReadFrom parses a standard MIDI file from an arbitrary reader.
func ReadFrom(r io.Reader) (*File, error) {
	raw, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("midifile: %w: %v", ErrInvalidMidi, err)
	}
	return &File{SMF: raw}, nil
}

// MoveMeta flattens a two-track (meta, music) file into a single track,
// time-interleaving the two tracks' events in the order the standard
// delta-time merge algorithm produces: each event's absolute time is
// computed by accumulating deltas within its own track, all events are
// then stably sorted on absolute time (ties broken by original track
// index, then original position within that track), and delta times are
// recomputed from the merged absolute-time sequence.
//
// Precondition: exactly two tracks, and every event in track 0 is a meta
// event. Violating either returns ErrInvalidMidi.
func MoveMeta(f *File) error {
	if len(f.Tracks) != 2 {
		return fmt.Errorf("midifile: %w: expected 2 tracks, got %d", ErrInvalidMidi, len(f.Tracks))
	}
	for _, ev := range f.Tracks[0] {
		if !isMeta(ev.Message) {
			return fmt.Errorf("midifile: %w: track 0 contains a non-meta event", ErrInvalidMidi)
		}
	}

	f.Tracks = []smf.Track{mergeTracks(f.Tracks[0], f.Tracks[1])}
	return nil
}

type timedEvent struct {
	abs     uint32
	track   int
	pos     int
	message smf.Message
}

// mergeTracks performs the standard merge of two delta-time tracks into
// one, preserving each track's internal relative timing.
func mergeTracks(a, b smf.Track) smf.Track {
	events := make([]timedEvent, 0, len(a)+len(b))
	events = append(events, toTimed(a, 0)...)
	events = append(events, toTimed(b, 1)...)

	// Stable sort by absolute time; ties keep (track, pos) order, which
	// the append order above already establishes, so a plain stable sort
	// on abs time alone is sufficient.
	stableSortByTime(events)

	merged := make(smf.Track, 0, len(events))
	var last uint32
	for _, ev := range events {
		merged = append(merged, smf.Event{Delta: ev.abs - last, Message: ev.message})
		last = ev.abs
	}
	return merged
}

func toTimed(track smf.Track, trackIdx int) []timedEvent {
	out := make([]timedEvent, 0, len(track))
	var abs uint32
	for i, ev := range track {
		abs += ev.Delta
		out = append(out, timedEvent{abs: abs, track: trackIdx, pos: i, message: ev.Message})
	}
	return out
}

// stableSortByTime sorts by absolute time, keeping ties in their original
// (track, position) append order.
func stableSortByTime(events []timedEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].abs < events[j].abs })
}

// isMeta reports whether msg is a meta event, identified the way the SMF
// format itself does: a leading 0xFF status byte.
func isMeta(msg smf.Message) bool {
	raw := []byte(msg)
	return len(raw) > 0 && raw[0] == 0xFF
}

// SetName sets the single track's name meta-event, replacing an existing
// track-name event if present, or inserting one at the front otherwise.
func SetName(f *File, name string) error {
	track, err := singleTrack(f)
	if err != nil {
		return err
	}
	msg := smf.Message(smf.MetaTrackSequenceName(name))
	for i, ev := range track {
		if ev.Message.Type() == smf.MetaTrackNameMsg {
			track[i] = smf.Event{Delta: ev.Delta, Message: msg}
			f.Tracks[0] = track
			return nil
		}
	}
	f.Tracks[0] = append(smf.Track{{Delta: 0, Message: msg}}, track...)
	return nil
}

// SetProgram rewrites the program of the track's single program_change
// event, leaving its channel and delta time untouched. Idempotent.
func SetProgram(f *File, program uint8) error {
	track, err := singleTrack(f)
	if err != nil {
		return err
	}
	var ch, prog uint8
	for i, ev := range track {
		if ev.Message.GetProgramChange(&ch, &prog) {
			track[i] = smf.Event{
				Delta:   ev.Delta,
				Message: smf.Message(midi.ProgramChange(ch, program)),
			}
			return nil
		}
	}
	return fmt.Errorf("midifile: %w: no program_change event", ErrInvalidMidi)
}

// SetChannel assigns channel to the track's program_change event and to
// every note_on event, matching the original ComMU preprocessing step
// (note_off events are left alone, as the reference implementation does).
func SetChannel(f *File, channel uint8) error {
	track, err := singleTrack(f)
	if err != nil {
		return err
	}
	var ch, prog, note, vel uint8
	for i, ev := range track {
		switch {
		case ev.Message.GetProgramChange(&ch, &prog):
			track[i] = smf.Event{Delta: ev.Delta, Message: smf.Message(midi.ProgramChange(channel, prog))}
		case ev.Message.GetNoteOn(&ch, &note, &vel):
			track[i] = smf.Event{Delta: ev.Delta, Message: smf.Message(midi.NoteOn(channel, note, vel))}
		}
	}
	return nil
}

// Duration sums the event delta-times on the file's single track.
func Duration(f *File) (int, error) {
	track, err := singleTrack(f)
	if err != nil {
		return 0, err
	}
	var total int
	for _, ev := range track {
		total += int(ev.Delta)
	}
	return total, nil
}

// TrackTime sums delta-times independently for every track in the file
// and asserts they all agree, a multi-track consistency check run before
// treating a file's tracks as simultaneous. An empty file has track time
// 0.
func TrackTime(f *File) (int, error) {
	if len(f.Tracks) == 0 {
		return 0, nil
	}
	var want int
	for i, track := range f.Tracks {
		var total int
		for _, ev := range track {
			total += int(ev.Delta)
		}
		if i == 0 {
			want = total
		} else if total != want {
			return 0, fmt.Errorf("midifile: tracks disagree on total time: track 0 = %d, track %d = %d", want, i, total)
		}
	}
	return want, nil
}

// Shift returns a deep copy of f whose sole program_change event has its
// delta time incremented by delta. No other event is touched, and the
// copy shares no mutable state with f.
func Shift(f *File, delta uint32) (*File, error) {
	clone := deepClone(f)
	track, err := singleTrack(clone)
	if err != nil {
		return nil, err
	}
	var ch, prog uint8
	for i, ev := range track {
		if ev.Message.GetProgramChange(&ch, &prog) {
			track[i] = smf.Event{Delta: ev.Delta + delta, Message: ev.Message}
			break
		}
	}
	return clone, nil
}

func deepClone(f *File) *File {
	clonedTracks := make([]smf.Track, len(f.Tracks))
	for i, track := range f.Tracks {
		clonedTrack := make(smf.Track, len(track))
		for j, ev := range track {
			clonedTrack[j] = smf.Event{Delta: ev.Delta, Message: append(smf.Message(nil), ev.Message...)}
		}
		clonedTracks[i] = clonedTrack
	}
	out := smf.NewSMF1()
	out.TimeFormat = f.TimeFormat
	out.Tracks = clonedTracks
	return &File{SMF: out}
}

// Merge builds a new multi-track file whose tracks are the concatenation
// of each input's tracks, in order. The time format is inherited from
// the first file.
func Merge(files []*File) (*File, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("midifile: merge requires at least one file")
	}
	out := smf.NewSMF1()
	out.TimeFormat = files[0].TimeFormat
	for _, f := range files {
		out.Tracks = append(out.Tracks, f.Tracks...)
	}
	return &File{SMF: out}, nil
}

// Save writes f to path as a standard MIDI file.
func (f *File) Save(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("midifile: create %s: %w", path, err)
	}
	defer out.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("midifile: write %s: %w", path, err)
	}
	return nil
}

func singleTrack(f *File) (smf.Track, error) {
	if len(f.Tracks) != 1 {
		return nil, fmt.Errorf("midifile: %w: expected 1 track, got %d", ErrInvalidMidi, len(f.Tracks))
	}
	return f.Tracks[0], nil
}
