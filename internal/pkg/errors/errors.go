package errors

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	// Ingestion pipeline stage errors. Recorded on the document as the
	// failure reason, never allowed to crash the pipeline worker.
	ErrExtract   = errors.New("extract failed")
	ErrEmptyText = errors.New("document text is empty")
	ErrEmbedding = errors.New("embedding provider failed")
	// ErrIngest marks acceptance failures before the pipeline runs, such as
	// a payload that could not be persisted or scheduled.
	ErrIngest = errors.New("ingest failed")

	// Query path errors.
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrGenerate          = errors.New("generate failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the caller may retry the request as-is.
// Validation failures are final; provider/storage failures and timeouts
// are transient.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrSearchUnavailable),
		errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrGenerate),
		errors.Is(err, ErrIngest),
		errors.Is(err, ErrInternal):
		return true
	}
	return false
}
