package table

// PlanTasks builds the task list for a batch: every (row, computed visible
// column) cell with no cached value and an available source. Pure: source
// availability is supplied by the caller through kindOf.
//
// Ordering is deterministic, row order then column order, so repeated
// planning over unchanged state yields an identical list. No two tasks
// share a (paper, column) pair.
func PlanTasks(cfg *TableConfig, rowPaperIDs []string, kindOf func(paperID string) SourceKind) []GenerationTask {
	kinds := make(map[string]SourceKind, len(rowPaperIDs))
	tasks := make([]GenerationTask, 0)

	for _, paperID := range rowPaperIDs {
		for _, col := range cfg.Columns {
			if col.Kind != ColumnComputed || !col.Visible {
				continue
			}
			if cfg.CellValue(paperID, col.ID) != "" {
				continue
			}

			kind, ok := kinds[paperID]
			if !ok {
				kind = kindOf(paperID)
				kinds[paperID] = kind
			}
			if kind == SourceNone {
				continue
			}

			tasks = append(tasks, GenerationTask{
				PaperID:    paperID,
				Column:     col,
				SourceKind: kind,
			})
		}
	}
	return tasks
}
