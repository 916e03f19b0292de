package table

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paperdeck/core/internal/modules/settings"
	"github.com/paperdeck/core/internal/pkg/pagination"
	"github.com/paperdeck/core/internal/pkg/response"
	"github.com/paperdeck/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

type Handler struct {
	store     *Store
	scheduler *Scheduler
	settings  *settings.Service
	runs      *taskqueue.Service
	log       *zap.Logger
}

func NewHandler(store *Store, scheduler *Scheduler, settingsSvc *settings.Service, runs *taskqueue.Service, log *zap.Logger) *Handler {
	return &Handler{
		store:     store,
		scheduler: scheduler,
		settings:  settingsSvc,
		runs:      runs,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/tables", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)

	g.POST("/:id/columns", h.addColumn)
	g.PUT("/:id/columns/:columnId", h.updateColumn)
	g.DELETE("/:id/columns/:columnId", h.deleteColumn)

	g.POST("/:id/generate", h.generateAll)
	g.POST("/:id/extract", h.extractAll)
	g.POST("/:id/cells/:paperId/:columnId", h.generateCell)
	g.DELETE("/:id/cells/:paperId/:columnId", h.clearCell)

	g.GET("/:id/runs/latest", h.latestRun)

	r := rg.Group("/runs", authMW)
	r.GET("", h.listRuns)
	r.GET("/:id", h.getRun)
}

// coreColumns are the static metadata columns every new table starts with.
func coreColumns() []ColumnDefinition {
	return []ColumnDefinition{
		{ID: "title", Name: "Title", Kind: ColumnStatic, Visible: true, Sortable: true, Core: true},
		{ID: "authors", Name: "Authors", Kind: ColumnStatic, Visible: true, Sortable: true, Core: true},
		{ID: "year", Name: "Year", Kind: ColumnStatic, Visible: true, Sortable: true, Core: true},
	}
}

func (h *Handler) list(c *gin.Context) {
	tables, err := h.store.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, tables)
}

type tableBody struct {
	Name                 string   `json:"name"`
	AddedPaperIDs        []string `json:"added_paper_ids"`
	FilterQuery          string   `json:"filter_query"`
	SortBy               string   `json:"sort_by"`
	SortOrder            string   `json:"sort_order"`
	ResponseLengthBudget *int     `json:"response_length_budget"`
}

func (h *Handler) create(c *gin.Context) {
	var body tableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if body.Name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	cfg := &TableConfig{
		ID:            uuid.New().String(),
		Name:          body.Name,
		Columns:       coreColumns(),
		AddedPaperIDs: body.AddedPaperIDs,
		GeneratedData: map[string]map[string]string{},
		FilterQuery:   body.FilterQuery,
		SortBy:        body.SortBy,
		SortOrder:     body.SortOrder,
	}
	if body.ResponseLengthBudget != nil {
		cfg.ResponseLengthBudget = *body.ResponseLengthBudget
	}

	if err := h.store.Save(c.Request.Context(), cfg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, cfg)
}

func (h *Handler) get(c *gin.Context) {
	cfg, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) update(c *gin.Context) {
	cfg, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	var body tableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if body.Name != "" {
		cfg.Name = body.Name
	}
	if body.AddedPaperIDs != nil {
		cfg.AddedPaperIDs = body.AddedPaperIDs
	}
	cfg.FilterQuery = body.FilterQuery
	if body.SortBy != "" {
		cfg.SortBy = body.SortBy
	}
	if body.SortOrder != "" {
		cfg.SortOrder = body.SortOrder
	}
	if body.ResponseLengthBudget != nil {
		cfg.ResponseLengthBudget = *body.ResponseLengthBudget
	}

	if err := h.store.Save(c.Request.Context(), cfg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

type columnBody struct {
	Name                  string `json:"name"`
	GenerationInstruction string `json:"generation_instruction"`
	Visible               *bool  `json:"visible"`
	Sortable              *bool  `json:"sortable"`
}

func (h *Handler) addColumn(c *gin.Context) {
	cfg, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	var body columnBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if body.Name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	col := ColumnDefinition{
		ID:                    uuid.New().String(),
		Name:                  body.Name,
		Kind:                  ColumnComputed,
		GenerationInstruction: body.GenerationInstruction,
		Visible:               true,
		Sortable:              true,
	}
	if body.Visible != nil {
		col.Visible = *body.Visible
	}
	if body.Sortable != nil {
		col.Sortable = *body.Sortable
	}
	cfg.Columns = append(cfg.Columns, col)

	if err := h.store.Save(c.Request.Context(), cfg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, cfg)
}

func (h *Handler) updateColumn(c *gin.Context) {
	cfg, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	var body columnBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	columnID := c.Param("columnId")
	found := false
	for i := range cfg.Columns {
		if cfg.Columns[i].ID != columnID {
			continue
		}
		found = true
		if body.Name != "" {
			cfg.Columns[i].Name = body.Name
		}
		if cfg.Columns[i].Kind == ColumnComputed {
			cfg.Columns[i].GenerationInstruction = body.GenerationInstruction
		}
		if body.Visible != nil {
			cfg.Columns[i].Visible = *body.Visible
		}
		if body.Sortable != nil {
			cfg.Columns[i].Sortable = *body.Sortable
		}
		break
	}
	if !found {
		response.NotFound(c)
		return
	}

	if err := h.store.Save(c.Request.Context(), cfg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) deleteColumn(c *gin.Context) {
	cfg, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	columnID := c.Param("columnId")
	out := cfg.Columns[:0]
	removed := false
	for _, col := range cfg.Columns {
		if col.ID == columnID {
			if col.Core {
				response.BadRequest(c, "core columns cannot be deleted")
				return
			}
			removed = true
			continue
		}
		out = append(out, col)
	}
	if !removed {
		response.NotFound(c)
		return
	}
	cfg.Columns = out

	// Drop cached values of the deleted column.
	for paperID, row := range cfg.GeneratedData {
		delete(row, columnID)
		if len(row) == 0 {
			delete(cfg.GeneratedData, paperID)
		}
	}

	if err := h.store.Save(c.Request.Context(), cfg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

// batchBody optionally narrows a batch to a row subset. The UI sends the
// paper ids matching the table's active filter; an empty body means every
// added row.
type batchBody struct {
	PaperIDs []string `json:"paper_ids"`
}

// generateAll starts an asynchronous generation batch and returns the
// run record the UI polls for progress.
func (h *Handler) generateAll(c *gin.Context) {
	h.startBatch(c, "generate", func(ctx context.Context, tableID string, rows []string, opts BatchOptions) ([]GenerationOutcome, error) {
		return h.scheduler.GenerateAll(ctx, tableID, rows, opts)
	}, true)
}

// extractAll starts an asynchronous OCR materialization batch.
func (h *Handler) extractAll(c *gin.Context) {
	h.startBatch(c, "extract", func(ctx context.Context, tableID string, rows []string, opts BatchOptions) ([]GenerationOutcome, error) {
		return h.scheduler.ExtractAll(ctx, tableID, rows, opts)
	}, false)
}

func (h *Handler) startBatch(c *gin.Context, kind string, run func(context.Context, string, []string, BatchOptions) ([]GenerationOutcome, error), preflight bool) {
	tableID := c.Param("id")

	var body batchBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	if _, err := h.store.Load(c.Request.Context(), tableID); err != nil {
		if errors.Is(err, ErrTableNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	if preflight {
		if err := h.scheduler.Preflight(); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if h.scheduler.Busy(tableID) {
		response.Conflict(c, ErrBatchInProgress.Error())
		return
	}

	cur, err := h.settings.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	run0, err := h.runs.Begin(c.Request.Context(), tableID, kind, 0)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	opts := BatchOptions{
		Concurrency:     cur.Table.Concurrency,
		SourceCharLimit: cur.Table.SourceCharLimit,
		MaxTokens:       cur.Table.ResponseBudget,
		RunID:           run0.ID,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		if _, err := run(ctx, tableID, body.PaperIDs, opts); err != nil {
			h.log.Warn("batch aborted",
				zap.String("table", tableID),
				zap.String("kind", kind),
				zap.Error(err),
			)
			if ferr := h.runs.Finish(ctx, run0.ID, taskqueue.RunFailed, nil, err.Error()); ferr != nil {
				h.log.Warn("batch run finalization failed", zap.Error(ferr))
			}
		}
	}()

	response.OK(c, run0)
}

// generateCell runs one cell synchronously, regenerating any cached value.
func (h *Handler) generateCell(c *gin.Context) {
	cur, err := h.settings.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	opts := BatchOptions{
		Concurrency:     1,
		SourceCharLimit: cur.Table.SourceCharLimit,
		MaxTokens:       cur.Table.ResponseBudget,
	}
	outcome, err := h.scheduler.GenerateCell(c.Request.Context(), c.Param("id"), c.Param("paperId"), c.Param("columnId"), opts)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			response.NotFound(c)
			return
		}
		if errors.Is(err, ErrNotConfigured) {
			response.BadRequest(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, outcome)
}

func (h *Handler) clearCell(c *gin.Context) {
	err := h.store.ClearCell(c.Request.Context(), c.Param("id"), c.Param("paperId"), c.Param("columnId"))
	if errors.Is(err, ErrTableNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) latestRun(c *gin.Context) {
	run, err := h.runs.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if run == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, run)
}

// listRuns pages through batch runs, newest first, optionally scoped to
// one table via ?table_id=.
func (h *Handler) listRuns(c *gin.Context) {
	q := pagination.FromContext(c)
	runs, total, err := h.runs.List(c.Request.Context(), q.Page, q.Size, c.Query("table_id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, runs, pagination.Meta(total, q))
}

func (h *Handler) getRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if run == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, run)
}
