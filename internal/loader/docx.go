package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type docxLoader struct{}

func init() {
	Register(&docxLoader{})
}

func (l *docxLoader) Format() model.SourceFormat {
	return model.SourceFormatDocx
}

// Load extracts paragraph text from word/document.xml inside the docx zip
// container. Tables and headings flatten into ordinary paragraphs.
func (l *docxLoader) Load(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx container: %v", appErr.ErrCorruptInput, err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open document.xml: %v", appErr.ErrCorruptInput, err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read document.xml: %v", appErr.ErrCorruptInput, err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", appErr.ErrCorruptInput)
	}
	return extractDocxText(docXML)
}

func extractDocxText(docXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	var paragraphs []string
	var current strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed document.xml: %v", appErr.ErrCorruptInput, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para := strings.TrimSpace(current.String()); para != "" {
					paragraphs = append(paragraphs, para)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if para := strings.TrimSpace(current.String()); para != "" {
		paragraphs = append(paragraphs, para)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
