package table

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, lib *fakeLibrary, completer Completer) (*Scheduler, *Store) {
	t.Helper()
	store := NewStore(newMemKV())
	resolver := NewResolver(lib, &fakeOCR{})
	return NewScheduler(store, resolver, lib, completer, nil, zap.NewNop()), store
}

func seedPapersWithNotes(lib *fakeLibrary, ids ...string) {
	for _, id := range ids {
		lib.addPaper(id, "Paper "+id)
		lib.addNote(id, "<p>notes for "+id+"</p>")
	}
}

func TestGenerateAllPersistsEveryCell(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1", "p2")

	scheduler, store := newTestScheduler(t, lib, &fakeCompleter{})
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1", "p2"},
	}))

	outcomes, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "generated value", loaded.CellValue("p1", "c1"))
	assert.Equal(t, "generated value", loaded.CellValue("p2", "c1"))
}

func TestGenerateAllPreflightFailure(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1")
	completer := &fakeCompleter{notReady: errCompleterDown}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1"},
	}))

	_, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, 0, completer.callCount())
}

func TestGenerateAllRejectsConcurrentBatch(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1")
	completer := &fakeCompleter{block: make(chan struct{})}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1"},
	}))

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		close(started)
		_, _ = scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	}()
	<-started
	// Wait for the first batch to claim its slot and block in the backend.
	for !scheduler.Busy("t1") {
		time.Sleep(time.Millisecond)
	}

	_, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	assert.True(t, errors.Is(err, ErrBatchInProgress))

	close(completer.block)
	<-finished
	assert.False(t, scheduler.Busy("t1"))
}

func TestBatchIsolatesFailures(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1", "p2", "p3")
	completer := &fakeCompleter{respond: func(userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Paper p2") {
			return "", errCompleterDown
		}
		return "ok", nil
	}}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1", "p2", "p3"},
	}))

	outcomes, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	byPaper := map[string]GenerationOutcome{}
	for _, outcome := range outcomes {
		byPaper[outcome.Task.PaperID] = outcome
	}
	assert.Equal(t, OutcomeSuccess, byPaper["p1"].Status)
	assert.Equal(t, OutcomeError, byPaper["p2"].Status)
	assert.Equal(t, OutcomeSuccess, byPaper["p3"].Status)

	// Completed siblings landed despite the failure in the middle.
	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "ok", loaded.CellValue("p1", "c1"))
	assert.Empty(t, loaded.CellValue("p2", "c1"))
	assert.Equal(t, "ok", loaded.CellValue("p3", "c1"))
}

func TestBatchBoundsConcurrency(t *testing.T) {
	lib := newFakeLibrary()
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	seedPapersWithNotes(lib, ids...)
	completer := &fakeCompleter{block: make(chan struct{})}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: ids,
	}))

	var progress []int
	var progressMu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{
			Concurrency: 2,
			OnProgress: func(completed, total int) {
				progressMu.Lock()
				progress = append(progress, completed)
				assert.Equal(t, len(ids), total)
				progressMu.Unlock()
			},
		})
	}()

	// Let workers pile up against the blocked backend, then release.
	for completer.peakConcurrency() < 2 {
		time.Sleep(time.Millisecond)
	}
	close(completer.block)
	<-done

	assert.LessOrEqual(t, completer.peakConcurrency(), 2)
	assert.Equal(t, len(ids), completer.callCount())

	progressMu.Lock()
	defer progressMu.Unlock()
	require.Len(t, progress, len(ids))
	assert.Equal(t, len(ids), progress[len(progress)-1])
}

func TestGenerateAllSecondRunPlansNothing(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1", "p2")
	completer := &fakeCompleter{respond: func(string) (string, error) {
		return "randomized controlled trial", nil
	}}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "What methodology does the paper use?")},
		AddedPaperIDs: []string{"p1", "p2"},
	}))

	outcomes, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, completer.callCount())

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "randomized controlled trial", loaded.CellValue("p1", "c1"))

	// Every cell is cached now, so a second batch is a no-op.
	outcomes, err = scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, 2, completer.callCount())
}

func TestGenerateAllRowSubset(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1", "p2", "p3")

	scheduler, store := newTestScheduler(t, lib, &fakeCompleter{})
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1", "p2", "p3"},
	}))

	// The caller supplies its filtered rows; ids outside the table are
	// ignored and unlisted rows stay untouched.
	outcomes, err := scheduler.GenerateAll(context.Background(), "t1", []string{"p3", "p1", "ghost"}, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "p3", outcomes[0].Task.PaperID)
	assert.Equal(t, "p1", outcomes[1].Task.PaperID)

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "generated value", loaded.CellValue("p1", "c1"))
	assert.Empty(t, loaded.CellValue("p2", "c1"))
	assert.Equal(t, "generated value", loaded.CellValue("p3", "c1"))

	// An empty (but non-nil) subset plans nothing.
	outcomes, err = scheduler.GenerateAll(context.Background(), "t1", []string{}, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestBatchUsesConfiguredTokenBudget(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1")
	completer := &fakeCompleter{}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1"},
	}))

	_, err := scheduler.GenerateAll(context.Background(), "t1", nil, BatchOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, completer.lastMaxTokens())
}

func TestGenerateCellBypassesCache(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1")
	completer := &fakeCompleter{respond: func(string) (string, error) {
		return "fresh value", nil
	}}

	scheduler, store := newTestScheduler(t, lib, completer)
	require.NoError(t, seedTable(store, &TableConfig{
		ID:            "t1",
		Columns:       []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
		AddedPaperIDs: []string{"p1"},
		GeneratedData: map[string]map[string]string{"p1": {"c1": "stale value"}},
	}))

	outcome, err := scheduler.GenerateCell(context.Background(), "t1", "p1", "c1", BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Status)
	assert.Equal(t, "fresh value", outcome.Value)

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "fresh value", loaded.CellValue("p1", "c1"))
}

func TestGenerateCellRejectsStaticColumn(t *testing.T) {
	lib := newFakeLibrary()
	seedPapersWithNotes(lib, "p1")

	scheduler, store := newTestScheduler(t, lib, &fakeCompleter{})
	require.NoError(t, seedTable(store, &TableConfig{
		ID:      "t1",
		Columns: []ColumnDefinition{{ID: "c1", Name: "Title", Kind: ColumnStatic, Visible: true}},
	}))

	_, err := scheduler.GenerateCell(context.Background(), "t1", "p1", "c1", BatchOptions{})
	assert.Error(t, err)
}

func TestRunTaskSkipsSourcelessPaper(t *testing.T) {
	lib := newFakeLibrary()
	lib.addPaper("p1", "Paper p1") // no notes, no PDF

	scheduler, store := newTestScheduler(t, lib, &fakeCompleter{})
	cfg := &TableConfig{
		ID:      "t1",
		Columns: []ColumnDefinition{computedColumn("c1", "Methodology", "x")},
	}
	require.NoError(t, seedTable(store, cfg))

	outcome := scheduler.runTask(context.Background(), cfg, GenerationTask{
		PaperID: "p1",
		Column:  cfg.Columns[0],
	}, BatchOptions{})
	assert.Equal(t, OutcomeEmptySource, outcome.Status)
}
