package domain

import (
	"fmt"
	"strings"
	"time"
)

// Note is a unit of text content identified by its vault-relative path.
type Note struct {
	Key     string
	Path    string
	Content string
	ModTime time.Time
}

// ModMillis returns the note's modification time in milliseconds since the epoch.
func (n Note) ModMillis() int64 {
	return n.ModTime.UnixMilli()
}

// VectorRecord is the indexed representation of one Note.
//
// ModTime is the note's modification time in milliseconds as of the last
// successful sync. HasModTime is false when the stored payload carried none.
type VectorRecord struct {
	Key        string
	Path       string
	Vector     []float32
	Preview    string
	ModTime    int64
	HasModTime bool
}

// Metric names the distance function a collection is built with.
type Metric string

const (
	MetricCosine Metric = "cosine"
)

// Field length limits of the collection schema.
const (
	MaxKeyLen     = 512
	MaxPathLen    = 1024
	MaxPreviewLen = 2048
)

// Payload field names shared by every backend.
const (
	FieldKey     = "id"
	FieldPath    = "file_path"
	FieldPreview = "content_preview"
	FieldModTime = "mtime"
	FieldVector  = "vector"
)

// CollectionSchema is fixed at creation time.
type CollectionSchema struct {
	Name      string
	Dimension int
	Metric    Metric
}

func DefaultSchema(name string, dimension int) CollectionSchema {
	return CollectionSchema{
		Name:      name,
		Dimension: dimension,
		Metric:    MetricCosine,
	}
}

// CollectionInfo is what a store reports about an existing collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Count     int64
	Loaded    bool
}

// ScoreKind tells whether a candidate carries a similarity or a distance.
type ScoreKind int

const (
	ScoreSimilarity ScoreKind = iota
	ScoreDistance
)

// Candidate is a raw nearest-neighbour hit as returned by a store backend.
type Candidate struct {
	Key     string
	Path    string
	Preview string
	Value   float64
	Kind    ScoreKind
}

// Similarity normalizes the candidate to "higher is better".
func (c Candidate) Similarity() float64 {
	if c.Kind == ScoreDistance {
		return 1 - c.Value
	}
	return c.Value
}

// SimilarityResult is the query-scoped projection shown to users.
type SimilarityResult struct {
	Key     string  `json:"key"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Percent formats the score as a percentage with one decimal, e.g. "80.0%".
func (r SimilarityResult) Percent() string {
	return fmt.Sprintf("%.1f%%", r.Score*100)
}

// SyncMode distinguishes the two rebuild passes.
type SyncMode string

const (
	SyncRefresh   SyncMode = "refresh"
	SyncRecompute SyncMode = "recompute"
	SyncKeys      SyncMode = "keys"
)

// NoteError attributes a failure to a single note.
type NoteError struct {
	Key string
	Err error
}

func (e NoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

// SyncReport is the final tally of a sync pass.
type SyncReport struct {
	Mode      SyncMode
	Total     int
	Processed int
	Skipped   int
	Failed    int
	// Removed counts records deleted because their note vanished.
	Removed  int
	Errors   []NoteError
	Duration time.Duration
}

// Preview returns content truncated to n runes with line breaks collapsed to spaces.
func Preview(content string, n int) string {
	r := []rune(content)
	if n > 0 && len(r) > n {
		r = r[:n]
	}
	s := string(r)
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}
