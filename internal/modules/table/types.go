package table

import "errors"

// ColumnKind distinguishes metadata columns from generated ones.
type ColumnKind string

const (
	ColumnStatic   ColumnKind = "static"
	ColumnComputed ColumnKind = "computed"
)

// ColumnDefinition describes one table column. Only computed columns are
// generation targets; static columns mirror bibliographic metadata.
type ColumnDefinition struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Kind                  ColumnKind `json:"kind"`
	GenerationInstruction string     `json:"generation_instruction,omitempty"`
	Visible               bool       `json:"visible"`
	Sortable              bool       `json:"sortable"`
	Core                  bool       `json:"core,omitempty"` // protected from deletion
}

// TableConfig is the persisted table document: schema, row membership and
// the authoritative cache of generated cell values.
//
// GeneratedData[p][c] is present and non-empty iff generation for (p, c)
// completed successfully at least once. An empty or missing entry always
// means "not yet generated".
type TableConfig struct {
	ID            string                       `json:"id"`
	Name          string                       `json:"name"`
	Columns       []ColumnDefinition           `json:"columns"`
	AddedPaperIDs []string                     `json:"added_paper_ids"`
	GeneratedData map[string]map[string]string `json:"generated_data"`
	// FilterQuery, SortBy and SortOrder persist the UI's view state.
	// Filtering is evaluated client side; a batch over the filtered view
	// passes the matching rows as the request's paper_ids.
	FilterQuery string `json:"filter_query,omitempty"`
	SortBy      string `json:"sort_by,omitempty"`
	SortOrder   string `json:"sort_order,omitempty"`
	// ResponseLengthBudget is a best-effort word cap added to prompts;
	// 0 = unlimited.
	ResponseLengthBudget int `json:"response_length_budget"`
}

// CellValue returns the cached generated value for (paperID, columnID),
// empty when not yet generated.
func (c *TableConfig) CellValue(paperID, columnID string) string {
	if c.GeneratedData == nil {
		return ""
	}
	return c.GeneratedData[paperID][columnID]
}

// SourceKind says what source material a paper offers for generation.
type SourceKind string

const (
	SourceNotes SourceKind = "notes"
	SourcePDF   SourceKind = "pdf"
	SourceNone  SourceKind = "none"
)

// GenerationTask targets one cell. Ephemeral; planned fresh each batch.
type GenerationTask struct {
	PaperID    string           `json:"paper_id"`
	Column     ColumnDefinition `json:"column"`
	SourceKind SourceKind       `json:"source_kind"`
}

// OutcomeStatus is the terminal state of one task.
type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeEmptySource OutcomeStatus = "emptySource"
	OutcomeError       OutcomeStatus = "error"
)

// GenerationOutcome is the per-task result of a batch run.
type GenerationOutcome struct {
	Task   GenerationTask `json:"task"`
	Status OutcomeStatus  `json:"status"`
	Value  string         `json:"value,omitempty"`
	Error  string         `json:"error,omitempty"`
}

var (
	// ErrBatchInProgress rejects a second batch on a table that already has one running.
	ErrBatchInProgress = errors.New("a batch is already running for this table")
	// ErrNotConfigured short-circuits a batch before any network call when
	// no generation backend is available.
	ErrNotConfigured = errors.New("generation backend not configured")
	// ErrExtraction marks a failed OCR materialization. Per-task, never fatal to a batch.
	ErrExtraction = errors.New("source extraction failed")
	// ErrGeneration marks a failed or empty backend completion. Per-task, never fatal to a batch.
	ErrGeneration = errors.New("content generation failed")
	// ErrTableNotFound is returned for unknown table IDs.
	ErrTableNotFound = errors.New("table not found")
)
