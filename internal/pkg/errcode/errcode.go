package errcode

import (
	"errors"

	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrInternal
	ErrUnsupportedFormat
	ErrCorruptInput
	ErrInvalidChunkConfig
	ErrEmbeddingService
	ErrGenerationService
	ErrIndexConsistency
	ErrAIUnavailable
)

// FromError maps an error chain onto its numeric code for logs and exit
// reporting.
func FromError(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, appErr.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, appErr.ErrInvalid):
		return ErrInvalid
	case errors.Is(err, appErr.ErrConflict):
		return ErrConflict
	case errors.Is(err, appErr.ErrUnsupportedFormat):
		return ErrUnsupportedFormat
	case errors.Is(err, appErr.ErrCorruptInput):
		return ErrCorruptInput
	case errors.Is(err, appErr.ErrInvalidChunkConfig):
		return ErrInvalidChunkConfig
	case errors.Is(err, appErr.ErrEmbeddingService):
		return ErrEmbeddingService
	case errors.Is(err, appErr.ErrGenerationService):
		return ErrGenerationService
	case errors.Is(err, appErr.ErrIndexConsistency):
		return ErrIndexConsistency
	case errors.Is(err, appErr.ErrUnavailable):
		return ErrAIUnavailable
	case errors.Is(err, appErr.ErrInternal):
		return ErrInternal
	default:
		return ErrUnknown
	}
}
