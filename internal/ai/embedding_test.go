package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/ai"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type fakeEmbedProvider struct {
	dim      int
	batches  [][]string
	failures int
	permErr  error
	failText string
}

func (p *fakeEmbedProvider) Name() string { return "fake" }

func (p *fakeEmbedProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	p.batches = append(p.batches, append([]string(nil), texts...))
	if p.permErr != nil {
		return nil, p.permErr
	}
	if p.failText != "" {
		for _, text := range texts {
			if text == p.failText {
				return nil, ai.ErrUnavailable
			}
		}
	}
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("transient upstream failure")
	}
	out := make([][]float32, 0, len(texts))
	for range texts {
		vec := make([]float32, p.dim)
		vec[0] = 1
		out = append(out, vec)
	}
	return out, nil
}

func newEmbedClient(p *fakeEmbedProvider, batchSize int) *ai.EmbeddingClient {
	return ai.NewEmbeddingClient(p, ai.EmbedOptions{
		Model:          "test-embed",
		Dimension:      p.dim,
		BatchSize:      batchSize,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestEmbedBatching(t *testing.T) {
	provider := &fakeEmbedProvider{dim: 4}
	client := newEmbedClient(provider, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := client.Embed(context.Background(), texts, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for _, v := range vectors {
		require.Len(t, v, 4)
	}
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, provider.batches)
}

func TestEmbedEmptyInput(t *testing.T) {
	provider := &fakeEmbedProvider{dim: 4}
	client := newEmbedClient(provider, 2)

	vectors, err := client.Embed(context.Background(), nil, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Empty(t, vectors)
	require.Empty(t, provider.batches)
}

func TestEmbedRetryThenSuccess(t *testing.T) {
	provider := &fakeEmbedProvider{dim: 4, failures: 2}
	client := newEmbedClient(provider, 8)

	vectors, err := client.Embed(context.Background(), []string{"a", "b"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, provider.batches, 3)
}

func TestEmbedRetriesExhausted(t *testing.T) {
	provider := &fakeEmbedProvider{dim: 4, failures: 100}
	client := newEmbedClient(provider, 2)

	_, err := client.Embed(context.Background(), []string{"a", "b", "c"}, ai.TaskTypeDocument)
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrEmbeddingService)

	var batchErr *ai.BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Zero(t, batchErr.Completed)
	// Initial attempt plus MaxRetries, first batch only.
	require.Len(t, provider.batches, 4)
}

func TestEmbedPartialProgressReported(t *testing.T) {
	// First batch succeeds, the second hits a hard provider outage.
	provider := &fakeEmbedProvider{dim: 4, failText: "c"}
	client := newEmbedClient(provider, 2)

	_, err := client.Embed(context.Background(), []string{"a", "b", "c", "d"}, ai.TaskTypeDocument)
	require.Error(t, err)
	require.ErrorIs(t, err, ai.ErrUnavailable)

	var batchErr *ai.BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Equal(t, 2, batchErr.Completed)
}

func TestEmbedDimensionMismatchNotRetried(t *testing.T) {
	// Provider produces 3-dim vectors while the client expects 8.
	provider := &fakeEmbedProvider{dim: 3}
	client := ai.NewEmbeddingClient(provider, ai.EmbedOptions{
		Model:          "test-embed",
		Dimension:      8,
		BatchSize:      4,
		MaxRetries:     5,
		RetryBaseDelay: time.Millisecond,
	})

	_, err := client.Embed(context.Background(), []string{"a"}, ai.TaskTypeDocument)
	require.ErrorIs(t, err, ai.ErrDimensionMismatch)
	// Configuration faults fail fast.
	require.Len(t, provider.batches, 1)
}

func TestEmbedContextCancelStopsRetry(t *testing.T) {
	provider := &fakeEmbedProvider{dim: 4, failures: 100}
	client := newEmbedClient(provider, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Embed(ctx, []string{"a"}, ai.TaskTypeQuery)
	require.Error(t, err)
	// A dead context suppresses the retry loop.
	require.Len(t, provider.batches, 1)
}
