package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type pdfLoader struct{}

func init() {
	Register(&pdfLoader{})
}

func (l *pdfLoader) Format() model.SourceFormat {
	return model.SourceFormatPDF
}

func (l *pdfLoader) Load(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: pdf parse panic: %v", appErr.ErrCorruptInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrCorruptInput, err)
	}

	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			return "", fmt.Errorf("%w: page %d is unreadable", appErr.ErrCorruptInput, i)
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A page we cannot extract means silently truncated output,
			// which the caller must never see as success.
			return "", fmt.Errorf("%w: extract page %d: %v", appErr.ErrCorruptInput, i, err)
		}
		content = strings.TrimSpace(content)
		if content != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
