package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/ai"
	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
	"github.com/xxxsen/ragbase/internal/retrieval"
)

type Options struct {
	TopK               int
	MaxPromptSize      int
	MaxHistoryTurns    int
	EnableQueryRewrite bool
}

// Engine runs the retrieve -> augment -> generate workflow, one turn at a
// time per thread. Generation is the single long-lived suspension point:
// it streams fragments and honors cancellation on every exit path.
type Engine struct {
	retriever *retrieval.Retriever
	generator ai.IGenerator
	store     *ConversationStore
	opts      Options
}

func NewEngine(retriever *retrieval.Retriever, generator ai.IGenerator, store *ConversationStore, opts Options) *Engine {
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 6
	}
	return &Engine{retriever: retriever, generator: generator, store: store, opts: opts}
}

// TurnStream is the lazy, finite, non-restartable fragment sequence of one
// turn. Consume Fragments until it closes; Cancel aborts in-flight work.
type TurnStream struct {
	ThreadID  string
	fragments chan Fragment
	cancel    context.CancelFunc
}

func (t *TurnStream) Fragments() <-chan Fragment {
	return t.fragments
}

func (t *TurnStream) Cancel() {
	t.cancel()
}

// RunTurn starts a new workflow turn. An empty threadID opens a fresh
// conversation.
func (e *Engine) RunTurn(ctx context.Context, threadID, message string) (*TurnStream, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, appErr.ErrInvalid
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	stream := &TurnStream{
		ThreadID:  threadID,
		fragments: make(chan Fragment, 8),
		cancel:    cancel,
	}
	go e.run(runCtx, stream, threadID, message)
	return stream, nil
}

func (e *Engine) run(ctx context.Context, stream *TurnStream, threadID, message string) {
	defer close(stream.fragments)
	defer stream.cancel()

	logger := logutil.GetLogger(ctx).With(zap.String("thread_id", threadID))
	state := StateRetrieving

	fail := func(stage State, err error) {
		logger.Error("turn failed", zap.String("stage", string(stage)), zap.Error(err))
		e.emit(ctx, stream, Fragment{Err: err, Stage: stage})
	}

	// Retrieving
	chunks, err := e.retriever.Retrieve(ctx, message, e.opts.TopK)
	if err != nil {
		fail(state, err)
		return
	}
	if len(chunks) == 0 && e.opts.EnableQueryRewrite {
		chunks = e.retryWithRewrite(ctx, message, logger)
	}

	// Augmenting
	state = StateAugmenting
	history := e.store.History(threadID, e.opts.MaxHistoryTurns)
	prompt, kept := buildPrompt(history, chunks, message, e.opts.MaxPromptSize)
	citations := citationsOf(kept)

	// Generating
	state = StateGenerating
	var full strings.Builder
	if len(kept) == 0 {
		// Nothing in the index is relevant; answer with the canned
		// fallback instead of letting the model guess.
		full.WriteString(fallbackAnswer)
		if !e.emit(ctx, stream, Fragment{Text: fallbackAnswer}) {
			fail(state, ctx.Err())
			return
		}
	} else {
		err = e.generator.Stream(ctx, prompt, func(delta string) error {
			full.WriteString(delta)
			if !e.emit(ctx, stream, Fragment{Text: delta}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			fail(state, err)
			return
		}
	}

	// Completed: commit the whole turn, then signal termination.
	e.store.Append(threadID, model.Turn{
		UserMessage: message,
		Context:     kept,
		Response:    full.String(),
		Ctime:       time.Now().UnixMilli(),
	})
	e.emit(ctx, stream, Fragment{Done: true, Citations: citations})
	logger.Info("turn completed", zap.Int("context_chunks", len(kept)), zap.Int("citations", len(citations)))
}

func (e *Engine) emit(ctx context.Context, stream *TurnStream, f Fragment) bool {
	select {
	case stream.fragments <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// retryWithRewrite reformulates the question once and retries retrieval,
// mirroring the single rewrite-and-retry loop of the original workflow.
// Any failure falls back to the empty result.
func (e *Engine) retryWithRewrite(ctx context.Context, message string, logger *zap.Logger) []model.ScoredChunk {
	rewritten, err := e.generator.Generate(ctx, fmt.Sprintf(rewritePrompt, message))
	if err != nil || strings.TrimSpace(rewritten) == "" {
		logger.Warn("query rewrite failed", zap.Error(err))
		return nil
	}
	logger.Debug("retrying retrieval with rewritten query")
	chunks, err := e.retriever.Retrieve(ctx, rewritten, e.opts.TopK)
	if err != nil {
		logger.Warn("retrieval with rewritten query failed", zap.Error(err))
		return nil
	}
	return chunks
}

// History exposes the committed turn log of a thread.
func (e *Engine) History(threadID string) []model.Turn {
	return e.store.History(threadID, 0)
}
