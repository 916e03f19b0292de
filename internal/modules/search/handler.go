package search

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/search")
	g.GET("", h.search)
	g.POST("/import", auth, h.importWork)
}

func (h *Handler) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.BadRequest(c, "query parameter 'q' is required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("size", "25"))

	result, err := h.service.Search(c.Request.Context(), query, page, perPage)
	if err != nil {
		h.log.Warn("works search failed", zap.String("query", query), zap.Error(err))
		response.InternalError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *Handler) importWork(c *gin.Context) {
	var work Work
	if err := c.ShouldBindJSON(&work); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	paper, created, err := h.service.Import(c.Request.Context(), work)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if created {
		response.Created(c, paper)
		return
	}
	response.OK(c, paper)
}
