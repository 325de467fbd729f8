package model

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type SourceFormat string

const (
	SourceFormatText     SourceFormat = "txt"
	SourceFormatMarkdown SourceFormat = "md"
	SourceFormatPDF      SourceFormat = "pdf"
	SourceFormatDocx     SourceFormat = "docx"
)

type Document struct {
	ID           string         `json:"document_id"`
	Filename     string         `json:"filename"`
	SourceFormat SourceFormat   `json:"source_format"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	FailReason   string         `json:"fail_reason,omitempty"`
	Ctime        int64          `json:"ctime"`
}
