package table

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/paperdeck/core/internal/models"
	"github.com/paperdeck/core/internal/modules/library"
	"github.com/paperdeck/core/internal/modules/ocr"
)

// Library is the slice of the host item repository the table engine
// needs. *library.Service satisfies it.
type Library interface {
	GetByID(ctx context.Context, id string) (*models.PaperModel, error)
	Notes(ctx context.Context, paperID string) ([]models.NoteModel, error)
	NoteText(ctx context.Context, paperID string) (string, error)
	PrimaryPDF(ctx context.Context, paperID string) (*models.AttachmentModel, error)
	CreateNote(ctx context.Context, note *models.NoteModel) error
}

// Source is the resolved generation input for one paper.
type Source struct {
	Kind       SourceKind
	Text       string                  // set when Kind == SourceNotes
	Attachment *models.AttachmentModel // set when Kind == SourcePDF
}

// Resolver determines what source material a paper offers: existing note
// text first, a PDF needing OCR second, nothing last.
type Resolver struct {
	lib Library
	ocr ocr.Client
}

func NewResolver(lib Library, ocrClient ocr.Client) *Resolver {
	return &Resolver{lib: lib, ocr: ocrClient}
}

// Resolve inspects a paper's sources without side effects. Notes take
// precedence over PDF; a paper with both resolves to notes.
func (r *Resolver) Resolve(ctx context.Context, paperID string) (Source, error) {
	text, err := r.lib.NoteText(ctx, paperID)
	if err != nil {
		return Source{}, err
	}
	if text != "" {
		return Source{Kind: SourceNotes, Text: text}, nil
	}

	pdf, err := r.lib.PrimaryPDF(ctx, paperID)
	if err != nil {
		return Source{}, err
	}
	if pdf != nil {
		return Source{Kind: SourcePDF, Attachment: pdf}, nil
	}
	return Source{Kind: SourceNone}, nil
}

// ResolveAndMaterialize resolves a paper and, when only a PDF is
// available, runs OCR to materialize its text as a note before
// re-resolving to notes kind. Materialization is idempotent: a note
// carrying the extraction marker is reused instead of re-running OCR.
// OCR failures come back wrapped in ErrExtraction.
func (r *Resolver) ResolveAndMaterialize(ctx context.Context, paperID string) (Source, error) {
	src, err := r.Resolve(ctx, paperID)
	if err != nil {
		return Source{}, err
	}
	if src.Kind != SourcePDF {
		return src, nil
	}

	notes, err := r.lib.Notes(ctx, paperID)
	if err != nil {
		return Source{}, err
	}
	for _, note := range notes {
		if ocr.HasMarker(note.HTML) {
			if text := library.HTMLToText(note.HTML); text != "" {
				return Source{Kind: SourceNotes, Text: text}, nil
			}
		}
	}

	note, err := r.materialize(ctx, paperID, src.Attachment)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	text := library.HTMLToText(note.HTML)
	if text == "" {
		return Source{}, fmt.Errorf("%w: extraction produced no text", ErrExtraction)
	}
	return Source{Kind: SourceNotes, Text: text}, nil
}

func (r *Resolver) materialize(ctx context.Context, paperID string, att *models.AttachmentModel) (*models.NoteModel, error) {
	if r.ocr == nil {
		return nil, fmt.Errorf("ocr backend not configured")
	}

	f, err := os.Open(att.Path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	markdown, err := r.ocr.Extract(ctx, f, att.Filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("ocr returned empty text")
	}

	html, err := ocr.RenderNoteHTML(markdown)
	if err != nil {
		return nil, err
	}

	note := models.NoteModel{
		PaperID: paperID,
		Title:   "Extracted Text",
		HTML:    html,
	}
	if err := r.lib.CreateNote(ctx, &note); err != nil {
		return nil, fmt.Errorf("save extracted note: %w", err)
	}
	return &note, nil
}
