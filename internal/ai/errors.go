package ai

import "errors"

// ErrUnavailable marks a provider that is not configured or cannot be
// reached. Callers decide whether that is fatal (embedding, generation) or
// a fallback trigger (reranking).
var ErrUnavailable = errors.New("ai provider unavailable")
