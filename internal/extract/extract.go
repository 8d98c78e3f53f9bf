package extract

import (
	"fmt"
	"mime"
	"strings"
	"sync"
	"unicode/utf8"

	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

// Extractor turns a raw uploaded payload into plain text. Implementations
// are registered per MIME type; an unknown type fails the ingestion.
type Extractor func(data []byte) (string, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Extractor{}
)

func Register(mimeType string, fn Extractor) {
	key := strings.ToLower(strings.TrimSpace(mimeType))
	if key == "" || fn == nil {
		return
	}
	registryMu.Lock()
	registry[key] = fn
	registryMu.Unlock()
}

func Extract(data []byte, mimeType string) (string, error) {
	key := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		key = parsed
	}
	key = strings.ToLower(strings.TrimSpace(key))
	registryMu.RLock()
	fn := registry[key]
	registryMu.RUnlock()
	if fn == nil {
		return "", fmt.Errorf("%w: unsupported mime type %q", appErr.ErrExtract, mimeType)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", appErr.ErrExtract, key, err)
	}
	return text, nil
}

func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("payload is not valid utf-8")
	}
	return string(data), nil
}

func init() {
	// Markdown passes through as-is: the chunker understands its block
	// structure and keeps it for boundary snapping.
	Register("text/plain", extractPlainText)
	Register("text/markdown", extractPlainText)
	Register("text/x-markdown", extractPlainText)
}
