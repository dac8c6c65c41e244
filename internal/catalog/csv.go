package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aubade/midicomb/internal/sample"
)

// csvColumnAliases maps the raw CSV header names to their renamed form
// (the rename commu_dset.py's _preprocess applies: audio_key→key,
// chord_progressions→chord_progression, inst→instrument,
// sample_rhythm→rhythm, split_data→split).
var csvColumnAliases = map[string]string{
	"audio_key":          "key",
	"chord_progressions": "chord_progression",
	"inst":               "instrument",
	"sample_rhythm":      "rhythm",
	"split_data":         "split",
}

// LoadCSV reads the sample metadata CSV, dropping the leading index
// column pandas' to_csv leaves behind, renaming columns, and
// canonicalizing the chord_progression cell.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses sample metadata CSV content from an arbitrary reader.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: reading header: %w", err)
	}

	// The first column is an unnamed pandas index column; every other
	// column may appear under its raw or renamed name.
	colIndex := make(map[string]int)
	for i, name := range header {
		if i == 0 {
			continue
		}
		if alias, ok := csvColumnAliases[name]; ok {
			name = alias
		}
		colIndex[name] = i
	}

	required := []string{
		"id", "key", "chord_progression", "instrument", "rhythm", "split",
		"bpm", "time_signature", "num_measures", "genre", "track_role",
		"pitch_range", "min_velocity", "max_velocity",
	}
	for _, col := range required {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("catalog: missing required column %q", col)
		}
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading row: %w", err)
		}

		get := func(col string) string { return record[colIndex[col]] }

		bpm, err := strconv.Atoi(get("bpm"))
		if err != nil {
			return nil, fmt.Errorf("catalog: row %s: bad bpm: %w", get("id"), err)
		}
		numMeasures, err := strconv.Atoi(get("num_measures"))
		if err != nil {
			return nil, fmt.Errorf("catalog: row %s: bad num_measures: %w", get("id"), err)
		}
		minV, err := strconv.Atoi(get("min_velocity"))
		if err != nil {
			return nil, fmt.Errorf("catalog: row %s: bad min_velocity: %w", get("id"), err)
		}
		maxV, err := strconv.Atoi(get("max_velocity"))
		if err != nil {
			return nil, fmt.Errorf("catalog: row %s: bad max_velocity: %w", get("id"), err)
		}

		rows = append(rows, Row{
			ID:               get("id"),
			Split:            get("split"),
			Key:              get("key"),
			ChordProgression: Canonicalize(get("chord_progression")),
			Instrument:       get("instrument"),
			Rhythm:           get("rhythm"),
			BPM:              bpm,
			TimeSignature:    get("time_signature"),
			NumMeasures:      numMeasures,
			Genre:            get("genre"),
			Role:             sample.Role(get("track_role")),
			PitchRange:       get("pitch_range"),
			MinVelocity:      minV,
			MaxVelocity:      maxV,
		})
	}
	return rows, nil
}

// Canonicalize collapses a raw stringified list-of-lists chord cell
// (e.g. "[['Am', 'Am', ..., 'D', 'D']]") into its run-length-collapsed,
// dashed canonical form ("Am-C-G-Dm-Am-C-G-D").
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, "'", "")
	if s == "" {
		return ""
	}
	tokens := strings.Split(s, ", ")

	collapsed := tokens[:0:0]
	for i, tok := range tokens {
		if i == 0 || tok != collapsed[len(collapsed)-1] {
			collapsed = append(collapsed, tok)
		}
	}
	return strings.Join(collapsed, "-")
}
