package table

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadUnknownTable(t *testing.T) {
	store := NewStore(newMemKV())

	_, err := store.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestStoreSaveAssignsID(t *testing.T) {
	store := NewStore(newMemKV())
	cfg := &TableConfig{Name: "Reading List"}

	require.NoError(t, store.Save(context.Background(), cfg))
	require.NotEmpty(t, cfg.ID)

	loaded, err := store.Load(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reading List", loaded.Name)
	assert.NotNil(t, loaded.GeneratedData)
}

func TestStoreSetCellPersistsIncrementally(t *testing.T) {
	store := NewStore(newMemKV())
	cfg := &TableConfig{ID: "t1", Name: "T"}
	require.NoError(t, seedTable(store, cfg))

	require.NoError(t, store.SetCell(context.Background(), "t1", "p1", "c1", "survey"))
	require.NoError(t, store.SetCell(context.Background(), "t1", "p2", "c1", "rct"))

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "survey", loaded.CellValue("p1", "c1"))
	assert.Equal(t, "rct", loaded.CellValue("p2", "c1"))
}

func TestStoreClearCell(t *testing.T) {
	store := NewStore(newMemKV())
	cfg := &TableConfig{
		ID: "t1",
		GeneratedData: map[string]map[string]string{
			"p1": {"c1": "survey", "c2": "imagenet"},
		},
	}
	require.NoError(t, seedTable(store, cfg))

	require.NoError(t, store.ClearCell(context.Background(), "t1", "p1", "c1"))

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, loaded.CellValue("p1", "c1"))
	assert.Equal(t, "imagenet", loaded.CellValue("p1", "c2"))
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(newMemKV())
	require.NoError(t, seedTable(store, &TableConfig{ID: "t1"}))
	require.NoError(t, seedTable(store, &TableConfig{ID: "t2"}))

	require.NoError(t, store.Delete(context.Background(), "t1"))

	_, err := store.Load(context.Background(), "t1")
	assert.True(t, errors.Is(err, ErrTableNotFound))

	tables, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "t2", tables[0].ID)
}

func TestStoreConcurrentSetCell(t *testing.T) {
	store := NewStore(newMemKV())
	require.NoError(t, seedTable(store, &TableConfig{ID: "t1"}))

	papers := []string{"p1", "p2", "p3", "p4", "p5"}
	var wg sync.WaitGroup
	for _, paperID := range papers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = store.SetCell(context.Background(), "t1", id, "c1", "v-"+id)
		}(paperID)
	}
	wg.Wait()

	loaded, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	for _, paperID := range papers {
		assert.Equal(t, "v-"+paperID, loaded.CellValue(paperID, "c1"))
	}
}
