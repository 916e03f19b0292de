package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paperdeck/core/internal/models"
	"github.com/paperdeck/core/internal/modules/library"
	"github.com/paperdeck/core/internal/modules/settings"
	redisc "github.com/paperdeck/core/internal/pkg/redis"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "pd:search:"

// Service runs scholarly searches against the configured works endpoint
// and caches result pages in Redis.
type Service struct {
	settings *settings.Service
	lib      *library.Service
	rc       *redisc.Client
	log      *zap.Logger
}

func NewService(st *settings.Service, lib *library.Service, rc *redisc.Client, log *zap.Logger) *Service {
	return &Service{settings: st, lib: lib, rc: rc, log: log}
}

func (s *Service) client() (*Client, time.Duration, error) {
	cfg, err := s.settings.Get()
	if err != nil {
		return nil, 0, err
	}
	ttl := time.Duration(cfg.Table.SearchCacheTTL) * time.Second
	return NewClient(cfg.Search.Endpoint, cfg.Search.Mailto), ttl, nil
}

// Search returns one page of works, served from cache when a fresh copy
// of the same query page exists.
func (s *Service) Search(ctx context.Context, query string, page, perPage int) (*Result, error) {
	client, ttl, err := s.client()
	if err != nil {
		return nil, err
	}

	key := cacheKey(query, page, perPage)
	if s.rc != nil && ttl > 0 {
		if cached, err := s.rc.Get(ctx, key); err == nil && cached != "" {
			var result Result
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return &result, nil
			}
		}
	}

	result, err := client.Search(ctx, query, page, perPage)
	if err != nil {
		return nil, err
	}

	if s.rc != nil && ttl > 0 {
		if data, err := json.Marshal(result); err == nil {
			if err := s.rc.Set(ctx, key, data, ttl); err != nil {
				s.log.Warn("search cache write failed", zap.Error(err))
			}
		}
	}
	return result, nil
}

// Import creates a library paper from a search result. When a paper with
// the same DOI already exists it is returned unchanged instead of
// duplicating the record.
func (s *Service) Import(ctx context.Context, work Work) (*models.PaperModel, bool, error) {
	if work.DOI != "" {
		existing, err := s.lib.FindByDOI(ctx, work.DOI)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	paper := models.PaperModel{
		Title:      work.Title,
		Authors:    models.StringArray(work.Authors),
		Year:       work.Year,
		Venue:      work.Venue,
		DOI:        work.DOI,
		URL:        work.URL,
		Abstract:   work.Abstract,
		OpenAlexID: work.ID,
	}
	if paper.Title == "" {
		return nil, false, fmt.Errorf("work has no title")
	}
	if err := s.lib.Create(ctx, &paper); err != nil {
		return nil, false, err
	}
	return &paper, true, nil
}

func cacheKey(query string, page, perPage int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", query, page, perPage)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:16])
}
