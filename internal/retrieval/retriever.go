package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/ai"
	"github.com/xxxsen/ragbase/internal/index"
	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

const maxTopK = 20

// Retriever embeds a query and ranks indexed chunks against it. A result
// below the similarity cutoff never reaches the caller; an empty result is
// a valid answer, distinct from a retrieval failure.
type Retriever struct {
	embedder    ai.IEmbedder
	idx         index.Index
	defaultTopK int
	cutoff      float32
}

func New(embedder ai.IEmbedder, idx index.Index, defaultTopK int, cutoff float32) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &Retriever{embedder: embedder, idx: idx, defaultTopK: defaultTopK, cutoff: cutoff}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	vectors, err := r.embedder.Embed(ctx, []string{query}, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.idx.Search(ctx, vectors[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	results := make([]model.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.cutoff {
			continue
		}
		results = append(results, model.ScoredChunk{
			Chunk: model.Chunk{
				ChunkID:    hit.Entry.ChunkID,
				DocumentID: hit.Entry.DocumentID,
				Filename:   hit.Entry.Filename,
				Text:       hit.Entry.Text,
				Position:   hit.Entry.Position,
			},
			Score: hit.Score,
		})
	}
	logutil.GetLogger(ctx).Debug("retrieval done",
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(results)),
	)
	return results, nil
}
