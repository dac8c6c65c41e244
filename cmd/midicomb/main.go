// Command midicomb assembles a multi-track MIDI file from pre-composed
// samples matching a musical context: it selects samples from a catalog,
// schedules their start times, and writes the merged result to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aubade/midicomb/internal/catalog"
	"github.com/aubade/midicomb/internal/config"
	"github.com/aubade/midicomb/internal/driver"
	"github.com/aubade/midicomb/internal/musicctx"
	"github.com/aubade/midicomb/internal/scheduler"
)

func main() {
	bpm := flag.Int("bpm", 130, "beats per minute to match against the catalog")
	key := flag.String("key", "cmajor", "musical key to match against the catalog")
	timeSignature := flag.String("time-signature", "4/4", "time signature to match against the catalog")
	numMeasures := flag.Int("measures", 8, "number of measures to match against the catalog")
	genre := flag.String("genre", "newage", "genre to match against the catalog")
	rhythm := flag.String("rhythm", "standard", "rhythm to match against the catalog")
	chordProgression := flag.String("chords", "", "canonical dashed chord progression, e.g. Am-C-G-Dm-Am-C-G-D")

	datasetCSV := flag.String("dataset-csv", "cfg/sample_metadata.csv", "path to the sample metadata CSV")
	midiDir := flag.String("midi-dir", "dataset/commu_midi", "directory raw sample MIDI files live under")
	schedulerConfigPath := flag.String("scheduler-config", "", "path to a scheduler YAML config (demands/capacity/padding); uses built-in defaults if empty")
	instrumentProgramsPath := flag.String("instrument-programs", "cfg/inst_to_prog.yaml", "path to the instrument-to-GM-program YAML table")
	outDir := flag.String("out", "out", "output directory; a timestamped subdirectory is created under it")

	rngSeed := flag.Int64("seed", 1, "PRNG seed for catalog sampling")
	solveTimeout := flag.Duration("solve-timeout", 10*time.Second, "wall-clock budget for the scheduler")

	flag.Parse()

	mc := musicctx.Context{
		BPM:              *bpm,
		Key:              *key,
		TimeSignature:    *timeSignature,
		NumMeasures:      *numMeasures,
		Genre:            *genre,
		Rhythm:           *rhythm,
		ChordProgression: *chordProgression,
	}

	if err := run(mc, *datasetCSV, *midiDir, *schedulerConfigPath, *instrumentProgramsPath, *outDir, *rngSeed, *solveTimeout); err != nil {
		log.Printf("midicomb: %v\n", err)
		os.Exit(1)
	}
}

func run(mc musicctx.Context, datasetCSV, midiDir, schedulerConfigPath, instrumentProgramsPath, outDir string, rngSeed int64, solveTimeout time.Duration) error {
	programs, err := config.LoadInstrumentPrograms(instrumentProgramsPath)
	if err != nil {
		return err
	}

	rows, err := catalog.LoadCSV(datasetCSV)
	if err != nil {
		return err
	}
	dataset := catalog.NewDataset(rows, programs, midiDir, rngSeed)

	schedCfg := config.DefaultSchedulerConfig()
	if schedulerConfigPath != "" {
		schedCfg, err = config.LoadSchedulerConfig(schedulerConfigPath)
		if err != nil {
			return err
		}
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	runDir := filepath.Join(outDir, timestamp)

	result, err := driver.Run(context.Background(), dataset, scheduler.ChordSolver{}, schedCfg, mc, runDir, solveTimeout)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s (makespan %d ticks)\n", result.Path, result.Makespan)
	return nil
}
