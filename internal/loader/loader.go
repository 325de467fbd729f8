package loader

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

// Loader parses raw file bytes into plain text with paragraph boundaries
// preserved as blank lines. Partial extraction is an error, never silently
// truncated output.
type Loader interface {
	Format() model.SourceFormat
	Load(data []byte) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[model.SourceFormat]Loader{}
)

func Register(l Loader) {
	registryMu.Lock()
	registry[l.Format()] = l
	registryMu.Unlock()
}

// DetectFormat maps a filename extension onto the supported closed set.
func DetectFormat(filename string) (model.SourceFormat, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "txt", "text":
		return model.SourceFormatText, nil
	case "md", "markdown":
		return model.SourceFormatMarkdown, nil
	case "pdf":
		return model.SourceFormatPDF, nil
	case "docx":
		return model.SourceFormatDocx, nil
	default:
		return "", appErr.ErrUnsupportedFormat
	}
}

// Load parses data according to the declared format. The format whitelist is
// checked before any parsing happens.
func Load(data []byte, format model.SourceFormat) (string, error) {
	registryMu.RLock()
	l := registry[format]
	registryMu.RUnlock()
	if l == nil {
		return "", appErr.ErrUnsupportedFormat
	}
	return l.Load(data)
}
