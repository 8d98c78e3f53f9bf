package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrExtractFailed
	ErrIngestFailed
	ErrSearchUnavailable
	ErrGenerateFailed
	ErrAIUnavailable
)
