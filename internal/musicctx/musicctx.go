// Package musicctx defines the shared musical context a catalog query (or
// a generation pipeline, via the same substitutable interface) is
// parameterized on.
package musicctx

// Context is the seven-way conjunction the catalog filters rows on: bpm,
// key, time signature, number of measures, genre, rhythm, and chord
// progression (already canonicalized, dashed form).
type Context struct {
	BPM              int
	Key              string
	TimeSignature    string
	NumMeasures      int
	Genre            string
	Rhythm           string
	ChordProgression string
}
