package index

import (
	"context"
	"math"
)

// Entry is one indexed chunk: vector plus the metadata search returns.
type Entry struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Position   int
	Text       string
	Vector     []float32
}

// Hit is a search result ranked by similarity.
type Hit struct {
	Entry Entry
	Score float32
}

// Filters restricts a search to a metadata subset.
type Filters struct {
	DocumentIDs []string
}

// Index stores chunk vectors and supports cosine-similarity search.
// Functional behavior is identical across backends: ranking by
// non-increasing score, ties broken by insertion order, top_k clamped to
// the index size.
type Index interface {
	// Upsert is idempotent: re-upserting a chunk id replaces its vector
	// and metadata without changing its insertion position.
	Upsert(ctx context.Context, entries []Entry) error
	// DeleteByDocument removes every chunk of the document atomically and
	// reports how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Search(ctx context.Context, vector []float32, topK int, filters *Filters) ([]Hit, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// Normalize scales v to unit length so cosine similarity reduces to a dot
// product. The zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineSimilarity computes the cosine of the angle between a and b.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
