package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paperdeck/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions tunes one batch run. The handler fills it from settings
// and the table document.
type BatchOptions struct {
	// Concurrency bounds simultaneously in-flight OCR and generation
	// calls. Values < 1 fall back to DefaultConcurrency.
	Concurrency int
	// SourceCharLimit caps source characters per prompt.
	SourceCharLimit int
	// MaxTokens caps each cell completion response. Values < 1 fall back
	// to the generator default.
	MaxTokens int
	// OnProgress is invoked once per completed task with (done, total).
	OnProgress func(done, total int)
	// RunID, when set, ties progress to a persisted batch run record.
	RunID string
}

const DefaultConcurrency = 5

// Scheduler executes generation batches: plan, then run every task
// through resolve -> generate -> persist with a bounded worker window.
// One failed task never aborts its siblings, and each success persists
// immediately.
type Scheduler struct {
	store     *Store
	resolver  *Resolver
	lib       Library
	completer Completer
	runs      *taskqueue.Service
	log       *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewScheduler(store *Store, resolver *Resolver, lib Library, completer Completer, runs *taskqueue.Service, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		resolver:  resolver,
		lib:       lib,
		completer: completer,
		runs:      runs,
		log:       log,
		inFlight:  make(map[string]struct{}),
	}
}

// beginBatch claims the per-table batch slot. A second batch on the same
// table is rejected instead of racing the first on GeneratedData.
func (s *Scheduler) beginBatch(tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[tableID]; busy {
		return ErrBatchInProgress
	}
	s.inFlight[tableID] = struct{}{}
	return nil
}

func (s *Scheduler) endBatch(tableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, tableID)
}

// Busy reports whether a batch is currently running for the table.
func (s *Scheduler) Busy(tableID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[tableID]
	return busy
}

// Preflight reports whether a generation batch could start right now.
func (s *Scheduler) Preflight() error {
	if err := s.completer.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return nil
}

// selectRows narrows a batch to the requested rows. nil means every row
// added to the table; an explicit list keeps its order but is restricted
// to table members, so a stale filter result cannot plan foreign papers.
func selectRows(cfg *TableConfig, rows []string) []string {
	if rows == nil {
		return cfg.AddedPaperIDs
	}
	member := make(map[string]struct{}, len(cfg.AddedPaperIDs))
	for _, id := range cfg.AddedPaperIDs {
		member[id] = struct{}{}
	}
	out := make([]string, 0, len(rows))
	for _, id := range rows {
		if _, ok := member[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Plan builds the current task list for a table without running anything.
// rows, when non-nil, is the caller's current row subset (the UI passes
// the rows matching the active filter).
func (s *Scheduler) Plan(ctx context.Context, tableID string, rows []string) (*TableConfig, []GenerationTask, error) {
	cfg, err := s.store.Load(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	rows = selectRows(cfg, rows)

	kindOf := func(paperID string) SourceKind {
		src, err := s.resolver.Resolve(ctx, paperID)
		if err != nil {
			s.log.Warn("source resolution failed during planning",
				zap.String("paper", paperID), zap.Error(err))
			return SourceNone
		}
		return src.Kind
	}
	return cfg, PlanTasks(cfg, rows, kindOf), nil
}

// GenerateAll plans and runs a full generation batch for a table.
// Fails fast with ErrNotConfigured before any task runs when no
// generation backend is available, and with ErrBatchInProgress when the
// table already has a batch running.
func (s *Scheduler) GenerateAll(ctx context.Context, tableID string, rows []string, opts BatchOptions) ([]GenerationOutcome, error) {
	if err := s.completer.Ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if err := s.beginBatch(tableID); err != nil {
		return nil, err
	}
	defer s.endBatch(tableID)

	cfg, tasks, err := s.Plan(ctx, tableID, rows)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, cfg, tasks, opts)
}

// ExtractAll materializes OCR notes for every row that currently only
// has a PDF source. No generation happens; cells stay untouched.
func (s *Scheduler) ExtractAll(ctx context.Context, tableID string, rows []string, opts BatchOptions) ([]GenerationOutcome, error) {
	if err := s.beginBatch(tableID); err != nil {
		return nil, err
	}
	defer s.endBatch(tableID)

	cfg, err := s.store.Load(ctx, tableID)
	if err != nil {
		return nil, err
	}

	var tasks []GenerationTask
	for _, paperID := range selectRows(cfg, rows) {
		src, err := s.resolver.Resolve(ctx, paperID)
		if err != nil {
			s.log.Warn("source resolution failed during planning",
				zap.String("paper", paperID), zap.Error(err))
			continue
		}
		if src.Kind != SourcePDF {
			continue
		}
		tasks = append(tasks, GenerationTask{PaperID: paperID, SourceKind: SourcePDF})
	}

	run := func(ctx context.Context, task GenerationTask) GenerationOutcome {
		if _, err := s.resolver.ResolveAndMaterialize(ctx, task.PaperID); err != nil {
			return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
		}
		return GenerationOutcome{Task: task, Status: OutcomeSuccess}
	}
	return s.execute(ctx, tasks, opts, run)
}

// GenerateCell runs the pipeline for a single cell, bypassing the
// skip-if-cached check so a user can regenerate an existing value.
func (s *Scheduler) GenerateCell(ctx context.Context, tableID, paperID, columnID string, opts BatchOptions) (*GenerationOutcome, error) {
	if err := s.completer.Ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	cfg, err := s.store.Load(ctx, tableID)
	if err != nil {
		return nil, err
	}

	var column *ColumnDefinition
	for i := range cfg.Columns {
		if cfg.Columns[i].ID == columnID {
			column = &cfg.Columns[i]
			break
		}
	}
	if column == nil || column.Kind != ColumnComputed {
		return nil, fmt.Errorf("column %q is not a computed column", columnID)
	}

	task := GenerationTask{PaperID: paperID, Column: *column}
	outcome := s.runTask(ctx, cfg, task, opts)
	return &outcome, nil
}

// runBatch executes planned generation tasks through the bounded window.
func (s *Scheduler) runBatch(ctx context.Context, cfg *TableConfig, tasks []GenerationTask, opts BatchOptions) ([]GenerationOutcome, error) {
	run := func(ctx context.Context, task GenerationTask) GenerationOutcome {
		return s.runTask(ctx, cfg, task, opts)
	}
	return s.execute(ctx, tasks, opts, run)
}

// execute drains tasks through a fixed-size worker window. Workers never
// return an error into the group: every failure is captured as that
// task's outcome so siblings keep running.
func (s *Scheduler) execute(ctx context.Context, tasks []GenerationTask, opts BatchOptions, run func(context.Context, GenerationTask) GenerationOutcome) ([]GenerationOutcome, error) {
	total := len(tasks)
	outcomes := make([]GenerationOutcome, total)
	if s.runs != nil && opts.RunID != "" {
		if err := s.runs.Start(ctx, opts.RunID, total); err != nil {
			s.log.Warn("batch run start update failed", zap.Error(err))
		}
	}
	if total == 0 {
		s.finishRun(ctx, opts.RunID, outcomes)
		return outcomes, nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	var (
		progressMu sync.Mutex
		done       int
		succeeded  int
		skipped    int
		failed     int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			outcome := run(gctx, task)
			outcomes[i] = outcome

			progressMu.Lock()
			done++
			switch outcome.Status {
			case OutcomeSuccess:
				succeeded++
			case OutcomeEmptySource:
				skipped++
			default:
				failed++
			}
			d, su, sk, f := done, succeeded, skipped, failed
			progressMu.Unlock()

			if opts.OnProgress != nil {
				opts.OnProgress(d, total)
			}
			if s.runs != nil && opts.RunID != "" {
				if err := s.runs.Progress(ctx, opts.RunID, d, su, sk, f); err != nil {
					s.log.Warn("batch progress update failed", zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	s.finishRun(ctx, opts.RunID, outcomes)
	return outcomes, nil
}

// runTask is one task's full pipeline: resolve-and-materialize the
// source, generate, persist the cell.
func (s *Scheduler) runTask(ctx context.Context, cfg *TableConfig, task GenerationTask, opts BatchOptions) GenerationOutcome {
	if err := ctx.Err(); err != nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
	}

	src, err := s.resolver.ResolveAndMaterialize(ctx, task.PaperID)
	if err != nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
	}
	if src.Kind != SourceNotes || src.Text == "" {
		return GenerationOutcome{Task: task, Status: OutcomeEmptySource}
	}

	paper, err := s.lib.GetByID(ctx, task.PaperID)
	if err != nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
	}
	if paper == nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: "paper not found"}
	}

	gen := NewGenerator(s.completer, opts.SourceCharLimit, opts.MaxTokens)
	value, err := gen.Generate(ctx, paper, task.Column, src.Text, cfg.ResponseLengthBudget)
	if err != nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
	}

	if err := s.store.SetCell(ctx, cfg.ID, task.PaperID, task.Column.ID, value); err != nil {
		return GenerationOutcome{Task: task, Status: OutcomeError, Error: err.Error()}
	}
	return GenerationOutcome{Task: task, Status: OutcomeSuccess, Value: value}
}

func (s *Scheduler) finishRun(ctx context.Context, runID string, outcomes []GenerationOutcome) {
	if s.runs == nil || runID == "" {
		return
	}

	var errs []taskqueue.CellError
	status := taskqueue.RunCompleted
	for _, outcome := range outcomes {
		if outcome.Status != OutcomeError {
			continue
		}
		errs = append(errs, taskqueue.CellError{
			PaperID:  outcome.Task.PaperID,
			ColumnID: outcome.Task.Column.ID,
			Message:  outcome.Error,
		})
	}
	if len(errs) == len(outcomes) && len(outcomes) > 0 {
		status = taskqueue.RunFailed
	}

	summary := fmt.Sprintf("generated %d of %d", countStatus(outcomes, OutcomeSuccess), len(outcomes))
	if err := s.runs.Finish(ctx, runID, status, errs, summary); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("batch run finalization failed", zap.Error(err))
	}
}

func countStatus(outcomes []GenerationOutcome, status OutcomeStatus) int {
	n := 0
	for _, outcome := range outcomes {
		if outcome.Status == status {
			n++
		}
	}
	return n
}
