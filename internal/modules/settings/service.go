package settings

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/paperdeck/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsKey = "settings"

// Service manages the persisted Settings document.
type Service struct {
	db  *gorm.DB
	mu  sync.RWMutex
	cur *Settings
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the current settings, loading from DB if not cached.
func (s *Service) Get() (*Settings, error) {
	s.mu.RLock()
	if s.cur != nil {
		defer s.mu.RUnlock()
		return s.cur, nil
	}
	s.mu.RUnlock()

	return s.load()
}

func (s *Service) load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opt models.OptionModel
	err := s.db.Where("name = ?", settingsKey).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := Defaults()
		s.cur = &defaults
		_ = s.persist(&defaults)
		return s.cur, nil
	}
	if err != nil {
		return nil, err
	}

	cur := Defaults()
	if err := json.Unmarshal([]byte(opt.Value), &cur); err != nil {
		return nil, err
	}
	s.cur = &cur
	return s.cur, nil
}

// Patch merges the given partial JSON update into the current settings and persists it.
func (s *Service) Patch(partial map[string]json.RawMessage) (*Settings, error) {
	current, err := s.Get()
	if err != nil {
		return nil, err
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	merged := map[string]interface{}{}
	if err := json.Unmarshal(currentJSON, &merged); err != nil {
		return nil, err
	}

	for k, v := range partial {
		if len(strings.TrimSpace(string(v))) == 0 {
			continue
		}
		var incoming interface{}
		if err := json.Unmarshal(v, &incoming); err != nil {
			return nil, err
		}
		if existing, ok := merged[k]; ok {
			merged[k] = deepMergeJSON(existing, incoming)
			continue
		}
		merged[k] = incoming
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	updated := Defaults()
	if err := json.Unmarshal(mergedJSON, &updated); err != nil {
		return nil, err
	}
	normalize(&updated)

	s.mu.Lock()
	s.cur = &updated
	s.mu.Unlock()

	return &updated, s.persist(&updated)
}

func (s *Service) persist(cur *Settings) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	opt := models.OptionModel{Name: settingsKey, Value: string(data)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

// Invalidate clears the in-memory cache, forcing a DB reload on next Get.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = nil
}

// normalize clamps patched values back into valid ranges.
func normalize(cur *Settings) {
	if cur.Table.Concurrency < 1 {
		cur.Table.Concurrency = Defaults().Table.Concurrency
	}
	if cur.Table.ResponseBudget < 1 {
		cur.Table.ResponseBudget = Defaults().Table.ResponseBudget
	}
	if cur.Table.SourceCharLimit < 1 {
		cur.Table.SourceCharLimit = Defaults().Table.SourceCharLimit
	}
	if cur.Table.SearchCacheTTL < 0 {
		cur.Table.SearchCacheTTL = 0
	}
	if cur.Search.Endpoint == "" {
		cur.Search.Endpoint = Defaults().Search.Endpoint
	}
	cur.Search.Endpoint = strings.TrimRight(cur.Search.Endpoint, "/")
	cur.OCR.Endpoint = strings.TrimRight(strings.TrimSpace(cur.OCR.Endpoint), "/")
}

// deepMergeJSON merges incoming into existing recursively for JSON object maps.
// Non-object values, including arrays, are replaced wholesale.
func deepMergeJSON(existing, incoming interface{}) interface{} {
	existingMap, okA := existing.(map[string]interface{})
	incomingMap, okB := incoming.(map[string]interface{})
	if !okA || !okB {
		return incoming
	}
	for k, v := range incomingMap {
		if cur, ok := existingMap[k]; ok {
			existingMap[k] = deepMergeJSON(cur, v)
		} else {
			existingMap[k] = v
		}
	}
	return existingMap
}
