package app

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/middleware"
	"github.com/paperdeck/core/internal/modules/ai"
	"github.com/paperdeck/core/internal/modules/auth"
	"github.com/paperdeck/core/internal/modules/chat"
	"github.com/paperdeck/core/internal/modules/library"
	"github.com/paperdeck/core/internal/modules/ocr"
	"github.com/paperdeck/core/internal/modules/search"
	"github.com/paperdeck/core/internal/modules/settings"
	"github.com/paperdeck/core/internal/modules/table"
	pkgredis "github.com/paperdeck/core/internal/pkg/redis"
	"github.com/paperdeck/core/internal/pkg/response"
	"github.com/paperdeck/core/internal/pkg/taskqueue"
)

// services are the shared singletons routes and cron jobs depend on.
type services struct {
	settings *settings.Service
	runs     *taskqueue.Service
	ocr      ocr.Client
}

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(a.cfg.AdminToken)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	api := r.Group("/api/v1")

	api.GET("/", func(c *gin.Context) {
		response.OK(c, gin.H{
			"name":    "paperdeck-core",
			"version": "1.0.0",
		})
	})

	// Shared services
	settingsSvc := settings.NewService(db)
	librarySvc := library.NewService(db)
	aiSvc := ai.NewService(settingsSvc)
	runSvc := taskqueue.NewService(rc)
	ocrClient := &settingsOCRClient{settings: settingsSvc}

	tableStore := table.NewStore(table.NewOptionKV(db))
	resolver := table.NewResolver(librarySvc, ocrClient)
	completer := &columnCompleter{ai: aiSvc}
	scheduler := table.NewScheduler(tableStore, resolver, librarySvc, completer, runSvc, a.logger)

	searchSvc := search.NewService(settingsSvc, librarySvc, rc, a.logger)
	chatSvc := chat.NewService(aiSvc, librarySvc, settingsSvc)

	auth.NewHandler(a.cfg.AdminToken).RegisterRoutes(api, authMW)
	settings.NewHandler(settingsSvc).RegisterRoutes(api, authMW)
	library.NewHandler(librarySvc).RegisterRoutes(api, authMW)
	ai.NewHandler(aiSvc, a.logger).RegisterRoutes(api, authMW)
	table.NewHandler(tableStore, scheduler, settingsSvc, runSvc, a.logger).RegisterRoutes(api, authMW)
	search.NewHandler(searchSvc, a.logger).RegisterRoutes(api, authMW)
	chat.NewHandler(chatSvc, a.logger).RegisterRoutes(api, authMW)

	jobs := api.Group("/jobs", authMW)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	jobs.GET("/:name", func(c *gin.Context) {
		info, err := a.sched.Get(c.Param("name"))
		if err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, info)
	})
	jobs.POST("/:name/run", func(c *gin.Context) {
		// The run outlives the request, so it gets a fresh context.
		if err := a.sched.Run(context.Background(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, gin.H{"ok": 1})
	})

	a.deps = &services{settings: settingsSvc, runs: runSvc, ocr: ocrClient}
}

// columnCompleter binds the table engine to the column model assignment.
type columnCompleter struct {
	ai *ai.Service
}

func (c *columnCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	return c.ai.Complete(ctx, ai.AssignColumn, systemPrompt, userPrompt, maxTokens)
}

func (c *columnCompleter) Ready() error {
	return c.ai.Ready(ai.AssignColumn)
}

// settingsOCRClient reads the OCR endpoint from the live settings document
// on every call, so endpoint changes apply without a restart.
type settingsOCRClient struct {
	settings *settings.Service
}

func (s *settingsOCRClient) backend() (ocr.Client, error) {
	cfg, err := s.settings.Get()
	if err != nil {
		return nil, err
	}
	if !cfg.OCR.Enable || cfg.OCR.Endpoint == "" {
		return nil, fmt.Errorf("ocr backend not configured")
	}
	return ocr.NewHTTPClient(cfg.OCR.Endpoint, cfg.OCR.APIKey), nil
}

func (s *settingsOCRClient) Extract(ctx context.Context, pdf io.Reader, filename string) (string, error) {
	backend, err := s.backend()
	if err != nil {
		return "", err
	}
	return backend.Extract(ctx, pdf, filename)
}

func (s *settingsOCRClient) Health(ctx context.Context) error {
	backend, err := s.backend()
	if err != nil {
		return err
	}
	return backend.Health(ctx)
}
