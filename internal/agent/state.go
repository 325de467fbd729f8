package agent

import (
	"sync"

	"github.com/xxxsen/ragbase/internal/model"
)

// State is one step of the per-turn workflow. Errored is reachable from
// any non-terminal state; Completed and Errored are terminal.
type State string

const (
	StateIdle       State = "idle"
	StateRetrieving State = "retrieving"
	StateAugmenting State = "augmenting"
	StateGenerating State = "generating"
	StateCompleted  State = "completed"
	StateErrored    State = "errored"
)

// Fragment is one element of the response stream. The terminal fragment
// has Done set and carries the citations; a failed turn ends with Err and
// the stage that failed instead.
type Fragment struct {
	Text      string
	Done      bool
	Citations []model.Citation
	Err       error
	Stage     State
}

// ConversationStore is the append-only per-thread turn log. Turns are
// committed only when a workflow run completes; a failed or cancelled turn
// leaves the history untouched.
type ConversationStore struct {
	mu      sync.RWMutex
	threads map[string][]model.Turn
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{threads: map[string][]model.Turn{}}
}

// History returns up to the last maxTurns committed turns, oldest first.
func (s *ConversationStore) History(threadID string, maxTurns int) []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.threads[threadID]
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out
}

func (s *ConversationStore) Append(threadID string, turn model.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], turn)
}

func (s *ConversationStore) TurnCount(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[threadID])
}
