// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/junwei-liu/docgate/internal/core"
)

// mimeByExt maps supported file extensions to the content type docconv
// dispatches on.
var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".md":   "text/plain",
	".json": "application/json",
}

// FileType reports the short type tag recorded on documents ("pdf",
// "pptx", ...) or "" when the file is unsupported.
func FileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := mimeByExt[ext]; !ok {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// Supported reports whether the file can be extracted.
func Supported(filename string) bool { return FileType(filename) != "" }

type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md":
		return strings.TrimSpace(string(data)), nil
	case ".json":
		return prettyJSON(data)
	}

	ct := contentType
	if mime, ok := mimeByExt[ext]; ok && (ct == "" || ct == "application/octet-stream") {
		ct = mime
	}
	if ct == "" || ct == "application/octet-stream" {
		return "", fmt.Errorf("unsupported file type: %q", filename)
	}

	res, err := docconv.Convert(bytes.NewReader(data), ct, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("extract %q: %w", filename, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("extract %q: document yielded no text", filename)
	}
	return text, nil
}

// prettyJSON re-indents JSON so the model sees structure instead of a
// single long line. Invalid JSON passes through as raw text.
func prettyJSON(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return strings.TrimSpace(string(data)), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return strings.TrimSpace(string(data)), nil
	}
	return string(out), nil
}
