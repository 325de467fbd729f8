package agent

import (
	"fmt"
	"strings"

	"github.com/xxxsen/ragbase/internal/model"
)

const systemPrompt = `You are an assistant for question-answering tasks.
Use the provided document excerpts to answer the question.
If the excerpts do not contain the answer, say that you don't know.
Cite sources as [filename#position] when you use an excerpt.
Keep the answer concise.`

const rewritePrompt = `You are a search query optimizer.
Rewrite the question below so it matches relevant documents better.
- Keep the original meaning and language.
- Output ONLY the rewritten question.

QUESTION:
%s`

// fallbackAnswer is returned when there is no retrievable context at all.
const fallbackAnswer = "No related document found."

// buildPrompt assembles the generation prompt from system instructions,
// retrieved excerpts and recent history. When the assembled prompt exceeds
// the budget, the oldest history turns are dropped first, then the
// lowest-scored excerpts. The current user message is never dropped.
// It returns the prompt and the excerpts that survived trimming.
func buildPrompt(history []model.Turn, chunks []model.ScoredChunk, message string, budget int) (string, []model.ScoredChunk) {
	for {
		prompt := assemblePrompt(history, chunks, message)
		if budget <= 0 || len([]rune(prompt)) <= budget {
			return prompt, chunks
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		if len(chunks) > 0 {
			chunks = dropLowestScored(chunks)
			continue
		}
		return prompt, chunks
	}
}

func assemblePrompt(history []model.Turn, chunks []model.ScoredChunk, message string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if len(chunks) > 0 {
		sb.WriteString("\n\nDOCUMENT EXCERPTS:\n")
		for _, sc := range chunks {
			fmt.Fprintf(&sb, "\n[%s#%d]\n%s\n", sc.Chunk.Filename, sc.Chunk.Position, sc.Chunk.Text)
		}
	}
	if len(history) > 0 {
		sb.WriteString("\nCONVERSATION SO FAR:\n")
		for _, turn := range history {
			fmt.Fprintf(&sb, "\nUser: %s\nAssistant: %s\n", turn.UserMessage, turn.Response)
		}
	}
	sb.WriteString("\nQUESTION:\n")
	sb.WriteString(message)
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}

// dropLowestScored removes the worst excerpt while keeping the rest in
// their original ranked order.
func dropLowestScored(chunks []model.ScoredChunk) []model.ScoredChunk {
	lowest := 0
	for i, sc := range chunks {
		if sc.Score <= chunks[lowest].Score {
			lowest = i
		}
	}
	out := make([]model.ScoredChunk, 0, len(chunks)-1)
	out = append(out, chunks[:lowest]...)
	out = append(out, chunks[lowest+1:]...)
	return out
}

func citationsOf(chunks []model.ScoredChunk) []model.Citation {
	seen := map[string]bool{}
	var citations []model.Citation
	for _, sc := range chunks {
		key := fmt.Sprintf("%s#%d", sc.Chunk.Filename, sc.Chunk.Position)
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, model.Citation{
			Filename: sc.Chunk.Filename,
			Position: sc.Chunk.Position,
		})
	}
	return citations
}
