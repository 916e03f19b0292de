package taskqueue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRuns(n int) []*BatchRun {
	runs := make([]*BatchRun, n)
	for i := range runs {
		runs[i] = &BatchRun{ID: fmt.Sprintf("run-%d", i)}
	}
	return runs
}

func TestPageWindow(t *testing.T) {
	runs := fakeRuns(5)

	t.Run("first page", func(t *testing.T) {
		page := pageWindow(runs, 1, 2)
		require.Len(t, page, 2)
		assert.Equal(t, "run-0", page[0].ID)
		assert.Equal(t, "run-1", page[1].ID)
	})

	t.Run("partial last page", func(t *testing.T) {
		page := pageWindow(runs, 3, 2)
		require.Len(t, page, 1)
		assert.Equal(t, "run-4", page[0].ID)
	})

	t.Run("past the end", func(t *testing.T) {
		assert.Empty(t, pageWindow(runs, 4, 2))
	})

	t.Run("invalid bounds", func(t *testing.T) {
		assert.Empty(t, pageWindow(runs, 0, 2))
		assert.Empty(t, pageWindow(runs, 1, 0))
	})

	t.Run("no runs", func(t *testing.T) {
		assert.Empty(t, pageWindow(nil, 1, 10))
	})
}
