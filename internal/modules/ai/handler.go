package ai

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/ai", authMW)
	g.GET("/ready", h.ready)
	g.GET("/providers/:id/models", h.listModels)
}

// ready reports whether a completion could succeed with the current settings.
func (h *Handler) ready(c *gin.Context) {
	err := h.svc.Ready(AssignColumn)
	if errors.Is(err, ErrNoProvider) {
		response.OK(c, gin.H{"ready": false, "reason": err.Error()})
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"ready": true})
}

// listModels queries the provider's model list, falling back to the
// configured default model when the remote listing fails.
func (h *Handler) listModels(c *gin.Context) {
	cur, err := h.svc.settings.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	for _, provider := range cur.AI.Providers {
		if strings.TrimSpace(provider.ID) != id {
			continue
		}
		models, err := fetchModelsFromProvider(provider)
		if err != nil {
			h.log.Warn("provider model listing failed",
				zap.String("provider", provider.ID),
				zap.Error(err),
			)
			models = modelsFromProvider(provider)
		}
		response.OK(c, models)
		return
	}
	response.NotFound(c)
}
