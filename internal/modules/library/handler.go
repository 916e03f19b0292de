package library

import (
	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/models"
	"github.com/paperdeck/core/internal/pkg/pagination"
	"github.com/paperdeck/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/papers", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)

	g.GET("/:id/notes", h.listNotes)
	g.POST("/:id/notes", h.createNote)
	g.GET("/:id/attachments", h.listAttachments)

	n := rg.Group("/notes", authMW)
	n.GET("/:id", h.getNote)
	n.PUT("/:id", h.updateNote)
	n.DELETE("/:id", h.deleteNote)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	papers, pag, err := h.svc.List(q, c.Query("keyword"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, papers, pag)
}

func (h *Handler) get(c *gin.Context) {
	paper, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if paper == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, paper)
}

type paperBody struct {
	Title    string   `json:"title" binding:"required"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Venue    string   `json:"venue"`
	DOI      string   `json:"doi"`
	URL      string   `json:"url"`
	Abstract string   `json:"abstract"`
	Tags     []string `json:"tags"`
}

func (h *Handler) create(c *gin.Context) {
	var body paperBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	paper := models.PaperModel{
		Title:    body.Title,
		Authors:  body.Authors,
		Year:     body.Year,
		Venue:    body.Venue,
		DOI:      body.DOI,
		URL:      body.URL,
		Abstract: body.Abstract,
		Tags:     body.Tags,
	}
	if err := h.svc.Create(c.Request.Context(), &paper); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, paper)
}

func (h *Handler) update(c *gin.Context) {
	paper, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if paper == nil {
		response.NotFound(c)
		return
	}

	var body paperBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	paper.Title = body.Title
	paper.Authors = body.Authors
	paper.Year = body.Year
	paper.Venue = body.Venue
	paper.DOI = body.DOI
	paper.URL = body.URL
	paper.Abstract = body.Abstract
	paper.Tags = body.Tags
	paper.Notes = nil
	paper.Attachments = nil

	if err := h.svc.Update(c.Request.Context(), paper); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, paper)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listNotes(c *gin.Context) {
	notes, err := h.svc.Notes(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, notes)
}

type noteBody struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

func (h *Handler) createNote(c *gin.Context) {
	var body noteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	note := models.NoteModel{
		PaperID: c.Param("id"),
		Title:   body.Title,
		HTML:    body.HTML,
	}
	if err := h.svc.CreateNote(c.Request.Context(), &note); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, note)
}

func (h *Handler) getNote(c *gin.Context) {
	note, err := h.svc.GetNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if note == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, note)
}

func (h *Handler) updateNote(c *gin.Context) {
	note, err := h.svc.GetNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if note == nil {
		response.NotFound(c)
		return
	}

	var body noteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	note.Title = body.Title
	note.HTML = body.HTML
	if err := h.svc.UpdateNote(c.Request.Context(), note); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, note)
}

func (h *Handler) deleteNote(c *gin.Context) {
	if err := h.svc.DeleteNote(c.Request.Context(), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listAttachments(c *gin.Context) {
	attachments, err := h.svc.Attachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, attachments)
}
