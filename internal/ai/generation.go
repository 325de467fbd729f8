package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

// IGenerator is the generation surface the agent consumes.
type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Stream emits response deltas in order. Once the first delta is out
	// the call is non-restartable: failures are surfaced, not retried.
	Stream(ctx context.Context, prompt string, emit func(delta string) error) error
}

type GenOptions struct {
	Model          string
	MaxRetries     int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
}

// GenerationClient wraps a provider with a circuit breaker and bounded
// retries for non-streaming calls.
type GenerationClient struct {
	provider IGenProvider
	opts     GenOptions
	breaker  *gobreaker.CircuitBreaker
}

func NewGenerationClient(provider IGenProvider, opts GenOptions) *GenerationClient {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation-" + provider.Name(),
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
	return &GenerationClient{provider: provider, opts: opts, breaker: breaker}
}

func (c *GenerationClient) Generate(ctx context.Context, prompt string) (string, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("model", c.opts.Model))
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.opts.RetryBaseDelay << (attempt - 1)
			logger.Warn("retrying generation", zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := c.breaker.Execute(func() (interface{}, error) {
			callCtx := ctx
			if c.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
				defer cancel()
			}
			return c.provider.Generate(callCtx, c.opts.Model, prompt)
		})
		if err == nil {
			return result.(string), nil
		}
		lastErr = err
		if !retryable(ctx, err) || errors.Is(err, gobreaker.ErrOpenState) {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", appErr.ErrGenerationService, lastErr)
}

func (c *GenerationClient) Stream(ctx context.Context, prompt string, emit func(delta string) error) error {
	if !breakerAllows(c.breaker) {
		return fmt.Errorf("%w: %v", appErr.ErrGenerationService, gobreaker.ErrOpenState)
	}
	emitted := false
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.provider.GenerateStream(ctx, c.opts.Model, prompt, func(delta string) error {
			emitted = true
			return emit(delta)
		})
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Nothing reached the caller yet, one clean retry is safe.
	if !emitted && retryable(ctx, err) {
		logutil.GetLogger(ctx).Warn("retrying generation stream", zap.String("model", c.opts.Model), zap.Error(err))
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.provider.GenerateStream(ctx, c.opts.Model, prompt, emit)
		})
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", appErr.ErrGenerationService, err)
}

func breakerAllows(b *gobreaker.CircuitBreaker) bool {
	return b.State() != gobreaker.StateOpen
}
