package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/paperdeck/core/internal/models"
	"github.com/paperdeck/core/internal/modules/library"
)

// memKV is an in-memory KV for store tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]json.RawMessage)}
}

func (kv *memKV) Get(_ context.Context, key string) (json.RawMessage, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	raw, ok := kv.data[key]
	if !ok {
		return nil, nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

func (kv *memKV) Set(_ context.Context, key string, value json.RawMessage) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	kv.data[key] = stored
	return nil
}

func (kv *memKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

// fakeLibrary is an in-memory Library implementation.
type fakeLibrary struct {
	mu          sync.Mutex
	papers      map[string]*models.PaperModel
	notes       map[string][]models.NoteModel
	attachments map[string][]models.AttachmentModel
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		papers:      make(map[string]*models.PaperModel),
		notes:       make(map[string][]models.NoteModel),
		attachments: make(map[string][]models.AttachmentModel),
	}
}

func (l *fakeLibrary) addPaper(id, title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	paper := &models.PaperModel{Title: title}
	paper.ID = id
	l.papers[id] = paper
}

func (l *fakeLibrary) addNote(paperID, html string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes[paperID] = append(l.notes[paperID], models.NoteModel{PaperID: paperID, HTML: html})
}

func (l *fakeLibrary) addPDF(paperID, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attachments[paperID] = append(l.attachments[paperID], models.AttachmentModel{
		PaperID:     paperID,
		Filename:    "paper.pdf",
		ContentType: "application/pdf",
		Path:        path,
	})
}

func (l *fakeLibrary) GetByID(_ context.Context, id string) (*models.PaperModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.papers[id], nil
}

func (l *fakeLibrary) Notes(_ context.Context, paperID string) ([]models.NoteModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.NoteModel(nil), l.notes[paperID]...), nil
}

func (l *fakeLibrary) NoteText(_ context.Context, paperID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var parts []string
	for _, note := range l.notes[paperID] {
		if text := library.HTMLToText(note.HTML); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (l *fakeLibrary) PrimaryPDF(_ context.Context, paperID string) (*models.AttachmentModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.attachments[paperID] {
		if l.attachments[paperID][i].IsPDF() {
			att := l.attachments[paperID][i]
			return &att, nil
		}
	}
	return nil, nil
}

func (l *fakeLibrary) CreateNote(_ context.Context, note *models.NoteModel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes[note.PaperID] = append(l.notes[note.PaperID], *note)
	return nil
}

// fakeOCR records extraction calls and serves canned markdown.
type fakeOCR struct {
	mu       sync.Mutex
	calls    int
	markdown string
	err      error
}

func (o *fakeOCR) Extract(_ context.Context, _ io.Reader, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	return o.markdown, nil
}

func (o *fakeOCR) Health(context.Context) error { return nil }

func (o *fakeOCR) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// fakeCompleter serves canned completions and tracks concurrency.
type fakeCompleter struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	lastTokens  int
	notReady    error
	// respond maps a per-call hook; nil means echo a fixed answer.
	respond func(userPrompt string) (string, error)
	// block, when non-nil, is closed by the test to release all workers.
	block chan struct{}
}

var errCompleterDown = errors.New("backend unavailable")

func (f *fakeCompleter) Complete(ctx context.Context, _, userPrompt string, maxTokens int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	f.lastTokens = maxTokens
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.respond != nil {
		return f.respond(userPrompt)
	}
	return "generated value", nil
}

func (f *fakeCompleter) Ready() error { return f.notReady }

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompleter) lastMaxTokens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokens
}

func (f *fakeCompleter) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func computedColumn(id, name, instruction string) ColumnDefinition {
	return ColumnDefinition{
		ID:                    id,
		Name:                  name,
		Kind:                  ColumnComputed,
		GenerationInstruction: instruction,
		Visible:               true,
	}
}

func seedTable(store *Store, cfg *TableConfig) error {
	if err := store.Save(context.Background(), cfg); err != nil {
		return fmt.Errorf("seed table: %w", err)
	}
	return nil
}
