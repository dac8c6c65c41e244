package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/aubade/midicomb/internal/config"
	"github.com/aubade/midicomb/internal/midifile"
	"github.com/aubade/midicomb/internal/musicctx"
	"github.com/aubade/midicomb/internal/sample"
	"github.com/aubade/midicomb/internal/scheduler"
)

func singleTrackFile(channel, program uint8, noteDelta uint32) *midifile.File {
	f := smf.NewSMF1()
	f.TimeFormat = smf.MetricTicks(480)
	f.Tracks = []smf.Track{{
		{Delta: 0, Message: smf.Message(midi.ProgramChange(channel, program))},
		{Delta: noteDelta, Message: smf.Message(midi.NoteOn(channel, 60, 100))},
		{Delta: 20, Message: smf.Message(midi.NoteOff(channel, 60))},
		{Delta: 0, Message: smf.EOT},
	}}
	return &midifile.File{SMF: f}
}

type fakeProducer struct {
	roleToSamples map[sample.Role][]*sample.Sample
	err           error
}

func (p *fakeProducer) SampleMidis(mc musicctx.Context) (map[sample.Role][]*sample.Sample, error) {
	return p.roleToSamples, p.err
}

func TestRunWritesMergedOutput(t *testing.T) {
	producer := &fakeProducer{roleToSamples: map[sample.Role][]*sample.Sample{
		sample.MainMelody: {{Role: sample.MainMelody, Instrument: "piano", Channel: 0, File: singleTrackFile(0, 1, 30)}},
		sample.Bass:       {{Role: sample.Bass, Instrument: "bass", Channel: 1, File: singleTrackFile(1, 33, 30)}},
	}}

	outDir := t.TempDir()
	result, err := Run(context.Background(), producer, scheduler.ChordSolver{}, config.DefaultSchedulerConfig(), musicctx.Context{}, filepath.Join(outDir, "run1"), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("expected output file at %s: %v", result.Path, err)
	}

	written, err := midifile.Load(result.Path)
	if err != nil {
		t.Fatalf("loading written output: %v", err)
	}
	// Two primaries plus floor(2/2) = 1 repeated copy.
	if len(written.Tracks) != 3 {
		t.Fatalf("expected 3 tracks in merged output, got %d", len(written.Tracks))
	}
}

func TestRunPropagatesProducerError(t *testing.T) {
	wantErr := &testError{"boom"}
	producer := &fakeProducer{err: wantErr}
	_, err := Run(context.Background(), producer, scheduler.ChordSolver{}, config.DefaultSchedulerConfig(), musicctx.Context{}, t.TempDir(), time.Second)
	if err != wantErr {
		t.Fatalf("expected producer error to propagate unchanged, got %v", err)
	}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestRunFailsWhenDemandMissingForRole(t *testing.T) {
	producer := &fakeProducer{roleToSamples: map[sample.Role][]*sample.Sample{
		sample.MainMelody: {{Role: sample.MainMelody, Instrument: "piano", Channel: 0, File: singleTrackFile(0, 1, 30)}},
	}}
	cfg := config.SchedulerConfig{Demands: map[string]int{}, Capacity: 6, Padding: 10}
	_, err := Run(context.Background(), producer, scheduler.ChordSolver{}, cfg, musicctx.Context{}, t.TempDir(), time.Second)
	if err == nil {
		t.Fatal("expected an error when no demand is configured for a role in use")
	}
}
