package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paperdeck/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is the generic persistence collaborator table documents live in.
type KV interface {
	Get(ctx context.Context, key string) (json.RawMessage, error) // (nil, nil) when absent
	Set(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
}

// OptionKV stores documents as rows of the options table.
type OptionKV struct {
	db *gorm.DB
}

func NewOptionKV(db *gorm.DB) *OptionKV {
	return &OptionKV{db: db}
}

func (kv *OptionKV) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var opt models.OptionModel
	err := kv.db.WithContext(ctx).Where("name = ?", key).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(opt.Value), nil
}

func (kv *OptionKV) Set(ctx context.Context, key string, value json.RawMessage) error {
	opt := models.OptionModel{Name: key, Value: string(value)}
	return kv.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

func (kv *OptionKV) Delete(ctx context.Context, key string) error {
	return kv.db.WithContext(ctx).Where("name = ?", key).Delete(&models.OptionModel{}).Error
}

const (
	tableKeyPrefix = "table:"
	tableIndexKey  = "tables:index"
)

// Store persists TableConfig documents. All writes are serialized through
// one mutex: concurrent batch tasks each own a distinct cell, so the only
// race is the read-modify-write of the document itself.
type Store struct {
	kv KV
	mu sync.Mutex
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load reads a table document. Returns ErrTableNotFound for unknown IDs.
func (s *Store) Load(ctx context.Context, tableID string) (*TableConfig, error) {
	raw, err := s.kv.Get(ctx, tableKeyPrefix+tableID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrTableNotFound
	}

	var cfg TableConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", tableID, err)
	}
	if cfg.GeneratedData == nil {
		cfg.GeneratedData = map[string]map[string]string{}
	}
	return &cfg, nil
}

// Save writes the full table document, registering its ID in the index.
func (s *Store) Save(ctx context.Context, cfg *TableConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, cfg)
}

func (s *Store) saveLocked(ctx context.Context, cfg *TableConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, tableKeyPrefix+cfg.ID, data); err != nil {
		return err
	}
	return s.indexAddLocked(ctx, cfg.ID)
}

// SetCell performs a serialized read-modify-write of a single generated
// cell. Used by batch tasks for incremental persistence: each completed
// task lands immediately, so an interrupted batch keeps finished work.
func (s *Store) SetCell(ctx context.Context, tableID, paperID, columnID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Load(ctx, tableID)
	if err != nil {
		return err
	}
	if cfg.GeneratedData[paperID] == nil {
		cfg.GeneratedData[paperID] = map[string]string{}
	}
	cfg.GeneratedData[paperID][columnID] = value
	return s.saveLocked(ctx, cfg)
}

// ClearCell removes a cached value so the cell becomes plannable again.
func (s *Store) ClearCell(ctx context.Context, tableID, paperID, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Load(ctx, tableID)
	if err != nil {
		return err
	}
	if row, ok := cfg.GeneratedData[paperID]; ok {
		delete(row, columnID)
		if len(row) == 0 {
			delete(cfg.GeneratedData, paperID)
		}
	}
	return s.saveLocked(ctx, cfg)
}

// Delete removes a table document and its index entry.
func (s *Store) Delete(ctx context.Context, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, tableKeyPrefix+tableID); err != nil {
		return err
	}
	ids, err := s.listIDs(ctx)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != tableID {
			out = append(out, id)
		}
	}
	return s.saveIndexLocked(ctx, out)
}

// List returns all known table documents.
func (s *Store) List(ctx context.Context) ([]*TableConfig, error) {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]*TableConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.Load(ctx, id)
		if errors.Is(err, ErrTableNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tables = append(tables, cfg)
	}
	return tables, nil
}

func (s *Store) listIDs(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, tableIndexKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) indexAddLocked(ctx context.Context, tableID string) error {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == tableID {
			return nil
		}
	}
	return s.saveIndexLocked(ctx, append(ids, tableID))
}

func (s *Store) saveIndexLocked(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, tableIndexKey, data)
}
