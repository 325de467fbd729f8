package chunker

import (
	"regexp"
	"strings"

	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

var (
	paragraphRegex = regexp.MustCompile(`\n{2,}`)
	sentenceRegex  = regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*\s*|[^.!?]+$`)
)

// Chunker splits normalized text into size-bounded segments. Splitting is a
// pure function of (text, max size, overlap) so re-ingesting the same bytes
// always produces the same chunk ids.
type Chunker struct {
	maxSize int
	overlap int
}

func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, appErr.ErrInvalidChunkConfig
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, appErr.ErrInvalidChunkConfig
	}
	// An overlap that fills the whole chunk leaves no room for new content
	// and Split could never advance. Clamp it so every chunk carries at
	// least one rune of fresh text.
	if overlap > 0 && maxSize-overlap-1 < 1 {
		overlap = maxSize - 2
		if overlap < 0 {
			overlap = 0
		}
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Split cuts text on paragraph boundaries first, sentence boundaries inside
// oversized paragraphs, and falls back to hard rune splits only for a single
// sentence that exceeds the budget. Every chunk after the first starts with
// the tail of the previous chunk so retrieval keeps cross-boundary context.
// Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	units := c.units(text)
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	cur := ""
	flush := func() {
		if cur == "" {
			return
		}
		chunks = append(chunks, cur)
		if c.overlap > 0 {
			cur = tailRunes(cur, c.overlap)
		} else {
			cur = ""
		}
	}

	for _, unit := range units {
		for _, piece := range c.hardSplit(unit) {
			switch {
			case cur == "":
				cur = piece
			case runeLen(cur)+1+runeLen(piece) <= c.maxSize:
				cur += " " + piece
			default:
				flush()
				if cur == "" {
					cur = piece
				} else {
					cur += " " + piece
				}
			}
		}
	}
	if cur != "" && (len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], cur)) {
		chunks = append(chunks, cur)
	}
	return chunks
}

// contentBudget is the largest new-content piece that still fits next to a
// carried overlap tail plus the joining space.
func (c *Chunker) contentBudget() int {
	if c.overlap == 0 {
		return c.maxSize
	}
	return c.maxSize - c.overlap - 1
}

func (c *Chunker) units(text string) []string {
	var units []string
	budget := c.contentBudget()
	for _, para := range paragraphRegex.Split(text, -1) {
		para = strings.TrimSpace(collapseSpaces(para))
		if para == "" {
			continue
		}
		if runeLen(para) <= budget {
			units = append(units, para)
			continue
		}
		for _, sentence := range sentenceRegex.FindAllString(para, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence != "" {
				units = append(units, sentence)
			}
		}
	}
	if len(units) == 0 {
		if trimmed := strings.TrimSpace(collapseSpaces(text)); trimmed != "" {
			units = append(units, trimmed)
		}
	}
	return units
}

func (c *Chunker) hardSplit(unit string) []string {
	budget := c.contentBudget()
	runes := []rune(unit)
	if len(runes) <= budget {
		return []string{unit}
	}
	var pieces []string
	for start := 0; start < len(runes); start += budget {
		end := start + budget
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
