package table

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))
	return path
}

func TestResolvePrefersNotesOverPDF(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addNote("p1", "<p>handwritten summary</p>")
	lib.addPDF("p1", writeTempPDF(t))

	resolver := NewResolver(lib, &fakeOCR{})
	src, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNotes, src.Kind)
	assert.Equal(t, "handwritten summary", src.Text)
}

func TestResolveConcatenatesNotes(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addNote("p1", "<p>first note</p>")
	lib.addNote("p1", "<p>second note</p>")

	resolver := NewResolver(lib, &fakeOCR{})
	src, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNotes, src.Kind)
	// Same rendering the library exposes: notes joined by a blank line.
	assert.Equal(t, "first note\n\nsecond note", src.Text)
}

func TestResolvePDFOnly(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addPDF("p1", writeTempPDF(t))

	resolver := NewResolver(lib, &fakeOCR{})
	src, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourcePDF, src.Kind)
	require.NotNil(t, src.Attachment)
}

func TestResolveNoSource(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")

	resolver := NewResolver(lib, &fakeOCR{})
	src, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, src.Kind)
}

func TestResolveIgnoresEmptyNotes(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addNote("p1", "<p>   </p>")
	lib.addPDF("p1", writeTempPDF(t))

	resolver := NewResolver(lib, &fakeOCR{})
	src, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourcePDF, src.Kind)
}

func TestResolveAndMaterializeRunsOCROnce(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addPDF("p1", writeTempPDF(t))
	ocrBackend := &fakeOCR{markdown: "# Extracted\n\nThe study uses a survey design."}

	resolver := NewResolver(lib, ocrBackend)

	src, err := resolver.ResolveAndMaterialize(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNotes, src.Kind)
	assert.Contains(t, src.Text, "survey design")
	assert.Equal(t, 1, ocrBackend.callCount())

	// Second pass reuses the materialized note instead of re-running OCR.
	src, err = resolver.ResolveAndMaterialize(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNotes, src.Kind)
	assert.Equal(t, 1, ocrBackend.callCount())
}

func TestResolveAndMaterializeWrapsOCRFailure(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addPDF("p1", writeTempPDF(t))

	resolver := NewResolver(lib, &fakeOCR{err: errors.New("service down")})
	_, err := resolver.ResolveAndMaterialize(context.Background(), "p1")
	assert.True(t, errors.Is(err, ErrExtraction))
}

func TestResolveAndMaterializePassesThroughNotes(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper One")
	lib.addNote("p1", "<p>existing note</p>")
	ocrBackend := &fakeOCR{}

	resolver := NewResolver(lib, ocrBackend)
	src, err := resolver.ResolveAndMaterialize(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNotes, src.Kind)
	assert.Equal(t, 0, ocrBackend.callCount())
}
