package model

import "fmt"

// Chunk is one embedded segment of a document. Chunks are immutable once
// indexed and live exactly as long as their owning document.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ChunkID builds the canonical chunk id: document id plus ordinal.
func ChunkID(documentID string, position int) string {
	return fmt.Sprintf("%s:%d", documentID, position)
}

// ScoredChunk is a retrieval hit: a chunk plus its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Citation points a generated answer back at its supporting chunk.
type Citation struct {
	Filename string `json:"filename"`
	Position int    `json:"position"`
}
