package loader

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type textLoader struct{}

func init() {
	Register(&textLoader{})
}

func (l *textLoader) Format() model.SourceFormat {
	return model.SourceFormatText
}

func (l *textLoader) Load(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8 text", appErr.ErrCorruptInput)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
