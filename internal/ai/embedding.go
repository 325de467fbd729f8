package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

// ErrDimensionMismatch means the provider returned vectors of a different
// size than the deployment is configured for. This is a configuration fault
// and is never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// IEmbedder is the embedding surface the rest of the pipeline consumes.
type IEmbedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// BatchError reports how far a multi-batch embed got before failing, so the
// caller can decide between marking the document failed and retrying later.
type BatchError struct {
	Completed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding failed after %d inputs: %v", e.Completed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type EmbedOptions struct {
	Model          string
	Dimension      int
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
	RatePerSecond  int
}

// EmbeddingClient turns a raw provider into the pipeline's embedder: it
// splits oversized inputs into provider-sized batches, rate-limits and
// retries transient failures with exponential backoff, and enforces the
// deployment's fixed vector dimension.
type EmbeddingClient struct {
	provider IEmbedProvider
	opts     EmbedOptions
	limiter  *rate.Limiter
}

func NewEmbeddingClient(provider IEmbedProvider, opts EmbedOptions) *EmbeddingClient {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 200 * time.Millisecond
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond)
	}
	return &EmbeddingClient{provider: provider, opts: opts, limiter: limiter}
}

func (c *EmbeddingClient) Dimension() int {
	return c.opts.Dimension
}

func (c *EmbeddingClient) ModelName() string {
	return c.opts.Model
}

// Embed returns one vector per input text, same order, same count. Inputs
// larger than the provider batch size are split transparently; batches are
// issued in order so partial progress is a clean prefix of the input.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, &BatchError{Completed: start, Err: err}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("model", c.opts.Model), zap.Int("batch_size", len(texts)))
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.opts.RetryBaseDelay << (attempt - 1)
			logger.Warn("retrying embed batch", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		vectors, err := c.attempt(ctx, texts, taskType)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	if errors.Is(lastErr, ErrDimensionMismatch) || errors.Is(lastErr, ErrUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingService, lastErr)
}

func (c *EmbeddingClient) attempt(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	vectors, err := c.provider.EmbedBatch(ctx, c.opts.Model, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	if c.opts.Dimension > 0 {
		for i, v := range vectors {
			if len(v) != c.opts.Dimension {
				return nil, fmt.Errorf("%w: got %d for input %d, want %d", ErrDimensionMismatch, len(v), i, c.opts.Dimension)
			}
		}
	}
	return vectors, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	return true
}
