package midifile

import (
	"bytes"
	"testing"

	"github.com/go-test/deep"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func newTestFile(meta, music smf.Track) *File {
	f := smf.NewSMF1()
	f.TimeFormat = smf.MetricTicks(480)
	f.Tracks = []smf.Track{meta, music}
	return &File{SMF: f}
}

func metaTrack() smf.Track {
	return smf.Track{
		{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName("untitled"))},
		{Delta: 0, Message: smf.Message(smf.MetaTempo(120))},
		{Delta: 0, Message: smf.EOT},
	}
}

func musicTrack(channel, program uint8) smf.Track {
	return smf.Track{
		{Delta: 0, Message: smf.Message(midi.ProgramChange(channel, program))},
		{Delta: 10, Message: smf.Message(midi.NoteOn(channel, 60, 100))},
		{Delta: 20, Message: smf.Message(midi.NoteOff(channel, 60))},
		{Delta: 0, Message: smf.EOT},
	}
}

func TestMoveMetaRequiresTwoTracks(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 0))
	f.Tracks = f.Tracks[:1]
	if err := MoveMeta(f); err == nil {
		t.Fatal("expected error for a single-track file")
	}
}

func TestMoveMetaRejectsNonMetaTrack0(t *testing.T) {
	f := newTestFile(musicTrack(0, 0), metaTrack())
	if err := MoveMeta(f); err == nil {
		t.Fatal("expected error when track 0 is not all-meta")
	}
}

func TestMoveMetaProducesOneTrackPreservingRelativeTiming(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(1, 5))
	if err := MoveMeta(f); err != nil {
		t.Fatalf("MoveMeta: %v", err)
	}
	if len(f.Tracks) != 1 {
		t.Fatalf("expected 1 track after MoveMeta, got %d", len(f.Tracks))
	}

	var abs uint32
	var sawProgramChange, sawNoteOn bool
	var ch, prog, note, vel uint8
	for _, ev := range f.Tracks[0] {
		abs += ev.Delta
		if ev.Message.GetProgramChange(&ch, &prog) {
			sawProgramChange = true
			if abs != 0 {
				t.Fatalf("program_change expected at abs time 0, got %d", abs)
			}
		}
		if ev.Message.GetNoteOn(&ch, &note, &vel) {
			sawNoteOn = true
			if abs != 10 {
				t.Fatalf("note_on expected at abs time 10, got %d", abs)
			}
		}
	}
	if !sawProgramChange || !sawNoteOn {
		t.Fatalf("expected both program_change and note_on to survive the merge")
	}
}

func TestSetNameReplacesExistingTrackName(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 0))
	if err := MoveMeta(f); err != nil {
		t.Fatal(err)
	}
	if err := SetName(f, "bass"); err != nil {
		t.Fatal(err)
	}

	var found int
	for _, ev := range f.Tracks[0] {
		if ev.Message.Type() == smf.MetaTrackNameMsg {
			found++
			// MetaTrackSequenceName round-trips through the message bytes;
			// equality of the constructed message is the simplest check.
			if !bytes.Equal(ev.Message, smf.MetaTrackSequenceName("bass")) {
				t.Fatalf("expected a track name message naming %q, got %v", "bass", ev.Message)
			}
		}
	}
	if found != 1 {
		t.Fatalf("expected a single track-name event after SetName, got %d", found)
	}
}

func TestSetProgramIsIdempotentAndPreservesChannel(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(3, 10))
	if err := MoveMeta(f); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := SetProgram(f, 40); err != nil {
			t.Fatal(err)
		}
	}
	var ch, prog uint8
	for _, ev := range f.Tracks[0] {
		if ev.Message.GetProgramChange(&ch, &prog) {
			if prog != 40 {
				t.Fatalf("program = %d, want 40", prog)
			}
			if ch != 3 {
				t.Fatalf("channel = %d, want unchanged 3", ch)
			}
		}
	}
}

func TestSetChannelUpdatesProgramChangeAndNoteOnOnly(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 10))
	if err := MoveMeta(f); err != nil {
		t.Fatal(err)
	}
	if err := SetChannel(f, 7); err != nil {
		t.Fatal(err)
	}

	var ch, prog, note, vel uint8
	for _, ev := range f.Tracks[0] {
		if ev.Message.GetProgramChange(&ch, &prog) && ch != 7 {
			t.Fatalf("program_change channel = %d, want 7", ch)
		}
		if ev.Message.GetNoteOn(&ch, &note, &vel) && ch != 7 {
			t.Fatalf("note_on channel = %d, want 7", ch)
		}
	}
}

func TestDuration(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 0))
	if err := MoveMeta(f); err != nil {
		t.Fatal(err)
	}
	dur, err := Duration(f)
	if err != nil {
		t.Fatal(err)
	}
	if dur != 30 {
		t.Fatalf("duration = %d, want 30", dur)
	}
}

func TestShiftOnlyMovesProgramChangeAndDoesNotAliasSource(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 0))
	if err := MoveMeta(f); err != nil {
		t.Fatal(err)
	}
	before, err := Duration(f)
	if err != nil {
		t.Fatal(err)
	}

	shifted, err := Shift(f, 100)
	if err != nil {
		t.Fatal(err)
	}

	after, err := Duration(shifted)
	if err != nil {
		t.Fatal(err)
	}
	if after != before+100 {
		t.Fatalf("duration(shift(s, 100)) = %d, want %d", after, before+100)
	}

	// Mutating the shifted copy must not affect the source.
	shifted.Tracks[0][0].Delta = 999
	if diff := deep.Equal(f.Tracks[0][0].Delta, uint32(0)); diff != nil {
		t.Fatalf("source mutated by shift copy: %v", diff)
	}
}

func TestMergeConcatenatesTracksInOrder(t *testing.T) {
	a := newTestFile(metaTrack(), musicTrack(0, 0))
	if err := MoveMeta(a); err != nil {
		t.Fatal(err)
	}
	b := newTestFile(metaTrack(), musicTrack(1, 1))
	if err := MoveMeta(b); err != nil {
		t.Fatal(err)
	}

	merged, err := Merge([]*File{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(merged.Tracks))
	}
}

func TestTrackTimeDetectsDisagreement(t *testing.T) {
	f := newTestFile(metaTrack(), musicTrack(0, 0))
	if _, err := TrackTime(f); err == nil {
		t.Fatal("expected disagreement error between unmerged meta/music tracks")
	}
}
