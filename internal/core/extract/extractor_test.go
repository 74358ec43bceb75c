package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileType(t *testing.T) {
	assert.Equal(t, "pdf", FileType("report.PDF"))
	assert.Equal(t, "pptx", FileType("deck.pptx"))
	assert.Equal(t, "json", FileType("payload.json"))
	assert.Equal(t, "txt", FileType("notes.txt"))
	assert.Equal(t, "md", FileType("README.md"))
	assert.Equal(t, "", FileType("archive.zip"))
	assert.Equal(t, "", FileType("noextension"))
}

func TestExtractPlainText(t *testing.T) {
	e := NewDocconvExtractor(false)
	text, err := e.ExtractText(context.Background(), []byte("  hello world \n"), "text/plain", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractJSONPrettyPrints(t *testing.T) {
	e := NewDocconvExtractor(false)
	text, err := e.ExtractText(context.Background(), []byte(`{"b":1,"a":[2,3]}`), "application/json", "data.json")
	require.NoError(t, err)
	assert.Contains(t, text, "\n")
	assert.Contains(t, text, `"a"`)
}

func TestExtractInvalidJSONFallsBack(t *testing.T) {
	e := NewDocconvExtractor(false)
	text, err := e.ExtractText(context.Background(), []byte(`not json at all`), "application/json", "data.json")
	require.NoError(t, err)
	assert.Equal(t, "not json at all", text)
}

func TestExtractUnknownTypeFails(t *testing.T) {
	e := NewDocconvExtractor(false)
	_, err := e.ExtractText(context.Background(), []byte{0x50, 0x4b}, "application/octet-stream", "archive.zip")
	assert.Error(t, err)
}
