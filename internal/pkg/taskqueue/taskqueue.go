package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisc "github.com/paperdeck/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// RunStatus represents the lifecycle state of a batch run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CellError records one failed cell inside a batch run.
type CellError struct {
	PaperID  string `json:"paper_id"`
	ColumnID string `json:"column_id"`
	Message  string `json:"message"`
}

// BatchRun is the persisted record of one table batch, stored in Redis.
// The UI polls it for the live "n/total" counter and the terminal summary.
type BatchRun struct {
	ID        string      `json:"id"`
	TableID   string      `json:"table_id"`
	Kind      string      `json:"kind"` // generate | extract | cell
	Status    RunStatus   `json:"status"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Succeeded int         `json:"succeeded"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []CellError `json:"errors,omitempty"`
	Message   string      `json:"message,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

const (
	keyPrefix      = "pd:batch:"
	keyIndex       = "pd:batches:index" // sorted set: score=created_at, member=run_id
	keyTablePrefix = "pd:batch:table:"  // latest run id per table
	runTTL         = 7 * 24 * time.Hour // runs expire after 7 days
)

// Service manages batch run records in Redis.
type Service struct {
	rc *redisc.Client
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc}
}

func (s *Service) runKey(id string) string { return keyPrefix + id }

// Begin creates a new run record in pending state.
func (s *Service) Begin(ctx context.Context, tableID, kind string, total int) (*BatchRun, error) {
	run := &BatchRun{
		ID:        uuid.New().String(),
		TableID:   tableID,
		Kind:      kind,
		Status:    RunPending,
		Total:     total,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), data, runTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(run.CreatedAt.UnixMilli()),
		Member: run.ID,
	})
	pipe.Set(ctx, keyTablePrefix+tableID, run.ID, runTTL)
	_, err = pipe.Exec(ctx)
	return run, err
}

// GetByID retrieves a run by its ID. Returns (nil, nil) when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*BatchRun, error) {
	data, err := s.rc.Raw().Get(ctx, s.runKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var run BatchRun
	return &run, json.Unmarshal(data, &run)
}

// Latest returns the most recent run for a table, if any.
func (s *Service) Latest(ctx context.Context, tableID string) (*BatchRun, error) {
	id, err := s.rc.Raw().Get(ctx, keyTablePrefix+tableID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Start marks a run as running once its task count is known.
func (s *Service) Start(ctx context.Context, id string, total int) error {
	return s.update(ctx, id, func(run *BatchRun) {
		run.Status = RunRunning
		run.Total = total
	})
}

// Progress updates the live counters of a running batch.
func (s *Service) Progress(ctx context.Context, id string, completed, succeeded, skipped, failed int) error {
	return s.update(ctx, id, func(run *BatchRun) {
		run.Status = RunRunning
		run.Completed = completed
		run.Succeeded = succeeded
		run.Skipped = skipped
		run.Failed = failed
	})
}

// Finish marks a run as terminal with its final counters and per-cell errors.
func (s *Service) Finish(ctx context.Context, id string, status RunStatus, errs []CellError, message string) error {
	return s.update(ctx, id, func(run *BatchRun) {
		run.Status = status
		run.Errors = errs
		run.Message = message
	})
}

func (s *Service) update(ctx context.Context, id string, mutate func(*BatchRun)) error {
	run, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("batch run not found")
	}

	mutate(run)
	run.UpdatedAt = time.Now()

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.runKey(id), data, runTTL).Err()
}

// List returns runs ordered by creation time descending, optionally filtered by table.
func (s *Service) List(ctx context.Context, page, size int, tableID string) ([]*BatchRun, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var runs []*BatchRun
	for _, id := range ids {
		run, err := s.GetByID(ctx, id)
		if err != nil || run == nil {
			continue
		}
		if tableID != "" && run.TableID != tableID {
			continue
		}
		runs = append(runs, run)
	}

	return pageWindow(runs, page, size), int64(len(runs)), nil
}

// pageWindow slices runs down to one page. Out-of-range pages yield an
// empty page, never an error.
func pageWindow(runs []*BatchRun, page, size int) []*BatchRun {
	if page < 1 || size < 1 {
		return []*BatchRun{}
	}
	start := (page - 1) * size
	if start >= len(runs) {
		return []*BatchRun{}
	}
	end := start + size
	if end > len(runs) {
		end = len(runs)
	}
	return runs[start:end]
}

// DeleteFinished removes completed/failed runs created before the cutoff (0 = all finished).
func (s *Service) DeleteFinished(ctx context.Context, beforeMS int64) error {
	ids, _ := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		run, err := s.GetByID(ctx, id)
		if err != nil || run == nil {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if run.Status != RunCompleted && run.Status != RunFailed {
			continue
		}
		if beforeMS > 0 && run.CreatedAt.UnixMilli() >= beforeMS {
			continue
		}
		pipe.Del(ctx, s.runKey(id))
		pipe.ZRem(ctx, keyIndex, id)
	}
	_, err := pipe.Exec(ctx)
	return err
}
