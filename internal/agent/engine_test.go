package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/agent"
	"github.com/xxxsen/ragbase/internal/index"
	"github.com/xxxsen/ragbase/internal/index/memory"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
	"github.com/xxxsen/ragbase/internal/retrieval"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, ok := e.vectors[text]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int    { return 3 }
func (e *stubEmbedder) ModelName() string { return "stub" }

type stubGenerator struct {
	deltas    []string
	streamErr error
	rewritten string
	blockCtx  bool
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.rewritten != "" {
		return g.rewritten, nil
	}
	return strings.Join(g.deltas, ""), nil
}

func (g *stubGenerator) Stream(ctx context.Context, prompt string, emit func(delta string) error) error {
	if g.blockCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if g.streamErr != nil {
		return g.streamErr
	}
	for _, delta := range g.deltas {
		if err := emit(delta); err != nil {
			return err
		}
	}
	return nil
}

func seededRetriever(t *testing.T, queryVectors map[string][]float32) *retrieval.Retriever {
	t.Helper()
	st := memory.New()
	err := st.Upsert(context.Background(), []index.Entry{
		{ChunkID: "d1:0", DocumentID: "d1", Filename: "guide.txt", Position: 0, Text: "setup instructions", Vector: []float32{1, 0, 0}},
		{ChunkID: "d1:1", DocumentID: "d1", Filename: "guide.txt", Position: 1, Text: "troubleshooting notes", Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)
	return retrieval.New(&stubEmbedder{vectors: queryVectors}, st, 4, 0.5)
}

func collect(t *testing.T, stream *agent.TurnStream) []agent.Fragment {
	t.Helper()
	var fragments []agent.Fragment
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-stream.Fragments():
			if !ok {
				return fragments
			}
			fragments = append(fragments, f)
		case <-timeout:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestRunTurnStreamsAndCommits(t *testing.T) {
	r := seededRetriever(t, map[string][]float32{"how to set up": {1, 0, 0}})
	gen := &stubGenerator{deltas: []string{"Install ", "then ", "run."}}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2})

	stream, err := engine.RunTurn(context.Background(), "t1", "how to set up")
	require.NoError(t, err)
	require.Equal(t, "t1", stream.ThreadID)

	fragments := collect(t, stream)
	require.GreaterOrEqual(t, len(fragments), 4)

	var text strings.Builder
	for _, f := range fragments[:len(fragments)-1] {
		require.False(t, f.Done)
		require.NoError(t, f.Err)
		text.WriteString(f.Text)
	}
	require.Equal(t, "Install then run.", text.String())

	last := fragments[len(fragments)-1]
	require.True(t, last.Done)
	require.NotEmpty(t, last.Citations)
	require.Equal(t, "guide.txt", last.Citations[0].Filename)

	history := engine.History("t1")
	require.Len(t, history, 1)
	require.Equal(t, "how to set up", history[0].UserMessage)
	require.Equal(t, "Install then run.", history[0].Response)
	require.NotEmpty(t, history[0].Context)
}

func TestRunTurnEmptyRetrievalFallsBack(t *testing.T) {
	// The query embeds orthogonally to everything indexed.
	r := seededRetriever(t, map[string][]float32{})
	gen := &stubGenerator{deltas: []string{"should not be used"}}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2})

	stream, err := engine.RunTurn(context.Background(), "t1", "unrelated question")
	require.NoError(t, err)
	fragments := collect(t, stream)
	require.Len(t, fragments, 2)
	require.Equal(t, "No related document found.", fragments[0].Text)
	require.True(t, fragments[1].Done)
	require.Empty(t, fragments[1].Citations)

	// The canned answer still commits as a turn.
	require.Len(t, engine.History("t1"), 1)
}

func TestRunTurnQueryRewriteRecovery(t *testing.T) {
	// The raw query misses, the rewritten one hits.
	r := seededRetriever(t, map[string][]float32{"rewritten query": {1, 0, 0}})
	gen := &stubGenerator{deltas: []string{"answer"}, rewritten: "rewritten query"}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2, EnableQueryRewrite: true})

	stream, err := engine.RunTurn(context.Background(), "t1", "vague question")
	require.NoError(t, err)
	fragments := collect(t, stream)

	last := fragments[len(fragments)-1]
	require.True(t, last.Done)
	require.NotEmpty(t, last.Citations)
}

func TestRunTurnGenerationFailureNotCommitted(t *testing.T) {
	r := seededRetriever(t, map[string][]float32{"how to set up": {1, 0, 0}})
	gen := &stubGenerator{streamErr: errors.New("model unavailable")}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2})

	stream, err := engine.RunTurn(context.Background(), "t1", "how to set up")
	require.NoError(t, err)
	fragments := collect(t, stream)

	require.NotEmpty(t, fragments)
	last := fragments[len(fragments)-1]
	require.False(t, last.Done)
	require.Error(t, last.Err)
	require.Equal(t, agent.StateGenerating, last.Stage)

	require.Empty(t, engine.History("t1"))
	require.Zero(t, store.TurnCount("t1"))
}

func TestRunTurnCancellation(t *testing.T) {
	r := seededRetriever(t, map[string][]float32{"how to set up": {1, 0, 0}})
	gen := &stubGenerator{blockCtx: true}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2})

	stream, err := engine.RunTurn(context.Background(), "t1", "how to set up")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.Cancel()
	}()

	fragments := collect(t, stream)
	for _, f := range fragments {
		require.False(t, f.Done)
	}
	require.Zero(t, store.TurnCount("t1"))
}

func TestRunTurnEmptyMessageRejected(t *testing.T) {
	r := seededRetriever(t, nil)
	engine := agent.NewEngine(r, &stubGenerator{}, agent.NewConversationStore(), agent.Options{})

	_, err := engine.RunTurn(context.Background(), "t1", "   ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestRunTurnGeneratesThreadID(t *testing.T) {
	r := seededRetriever(t, nil)
	engine := agent.NewEngine(r, &stubGenerator{}, agent.NewConversationStore(), agent.Options{})

	stream, err := engine.RunTurn(context.Background(), "", "some question")
	require.NoError(t, err)
	require.NotEmpty(t, stream.ThreadID)
	collect(t, stream)
}

func TestMultiTurnHistoryAccumulates(t *testing.T) {
	r := seededRetriever(t, map[string][]float32{
		"first question":  {1, 0, 0},
		"second question": {0.9, 0.1, 0},
	})
	gen := &stubGenerator{deltas: []string{"answer"}}
	store := agent.NewConversationStore()
	engine := agent.NewEngine(r, gen, store, agent.Options{TopK: 2})

	for _, q := range []string{"first question", "second question"} {
		stream, err := engine.RunTurn(context.Background(), "t1", q)
		require.NoError(t, err)
		collect(t, stream)
	}

	history := engine.History("t1")
	require.Len(t, history, 2)
	require.Equal(t, "first question", history[0].UserMessage)
	require.Equal(t, "second question", history[1].UserMessage)
}
