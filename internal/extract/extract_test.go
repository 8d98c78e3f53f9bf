package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

func TestExtractPlainText(t *testing.T) {
	text, err := Extract([]byte("hello world"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
}

func TestExtractMarkdownWithCharsetParam(t *testing.T) {
	text, err := Extract([]byte("# title"), "text/markdown; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "# title", text)
}

func TestExtractUnsupportedMime(t *testing.T) {
	_, err := Extract([]byte("%PDF-1.4"), "application/pdf")
	require.ErrorIs(t, err, appErr.ErrExtract)
}

func TestExtractInvalidUTF8(t *testing.T) {
	_, err := Extract([]byte{0xff, 0xfe, 0x00}, "text/plain")
	require.ErrorIs(t, err, appErr.ErrExtract)
}
