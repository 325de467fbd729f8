package errors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal")
	ErrUnavailable        = errors.New("service unavailable")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrCorruptInput       = errors.New("corrupt document input")
	ErrInvalidChunkConfig = errors.New("invalid chunk config")
	ErrEmbeddingService   = errors.New("embedding service failed")
	ErrGenerationService  = errors.New("generation service failed")
	ErrIndexConsistency   = errors.New("registry/index inconsistency")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsCorruptInput(err error) bool {
	return errors.Is(err, ErrCorruptInput)
}
