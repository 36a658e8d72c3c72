package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"notesim/internal/domain"
)

// MockEmbedder hashes words into buckets so texts sharing words land close
// together. It never touches the network.
type MockEmbedder struct {
	dimension int
	calls     atomic.Int64

	// Fail, when set, is consulted before embedding; a non-nil error is returned as is.
	Fail func(text string) error
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Fail != nil {
		if err := e.Fail(text); err != nil {
			return nil, err
		}
	}

	vec := make([]float32, e.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32()%uint32(e.dimension))] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// empty text still needs a usable direction
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Calls returns how many times Embed was invoked.
func (e *MockEmbedder) Calls() int {
	return int(e.calls.Load())
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

// FailOnSubstring makes the embedder fail for any text containing s.
func FailOnSubstring(s string) func(string) error {
	return func(text string) error {
		if strings.Contains(text, s) {
			return domain.EmbeddingError("mock embed", "refusing text containing "+s, nil)
		}
		return nil
	}
}
