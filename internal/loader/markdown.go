package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type markdownLoader struct{}

func init() {
	Register(&markdownLoader{})
}

func (l *markdownLoader) Format() model.SourceFormat {
	return model.SourceFormatMarkdown
}

// Load flattens the markdown AST into plain text. Each top-level block
// becomes one paragraph so headings and list items keep their logical breaks
// for the chunker.
func (l *markdownLoader) Load(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8 markdown", appErr.ErrCorruptInput)
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		block := blockText(node, data)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.FencedCodeBlock:
			for i := 0; i < t.Lines().Len(); i++ {
				line := t.Lines().At(i)
				sb.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			for i := 0; i < t.Lines().Len(); i++ {
				line := t.Lines().At(i)
				sb.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
