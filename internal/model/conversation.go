package model

// Turn is one completed exchange in a conversation: the user message, the
// context that grounded the answer, and the full generated response.
type Turn struct {
	UserMessage string        `json:"user_message"`
	Context     []ScoredChunk `json:"context,omitempty"`
	Response    string        `json:"response"`
	Ctime       int64         `json:"ctime"`
}
