package ocr

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// MarkerHeading prefixes OCR-derived note content. Its presence in a
// note's HTML marks the paper's PDF as already materialized, so a second
// extraction pass can skip it.
const MarkerHeading = `<h2 data-source="ocr">Extracted Text</h2>`

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

// RenderNoteHTML converts extracted markdown into note HTML, prefixed
// with the materialization marker.
func RenderNoteHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return MarkerHeading + "\n" + buf.String(), nil
}

// HasMarker reports whether note HTML carries the materialization marker.
func HasMarker(html string) bool {
	return strings.Contains(html, `data-source="ocr"`)
}
