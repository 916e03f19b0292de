package auth

import (
	"crypto/subtle"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paperdeck/core/internal/middleware"
	"github.com/paperdeck/core/internal/pkg/jwt"
	"github.com/paperdeck/core/internal/pkg/response"
)

const sessionTTL = 7 * 24 * time.Hour

type Handler struct {
	adminToken string
}

func NewHandler(adminToken string) *Handler {
	return &Handler{adminToken: adminToken}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/login", h.login)
	g.GET("/check", authMW, h.check)
}

type loginBody struct {
	Token string `json:"token" binding:"required"`
}

// login exchanges the static admin token for a session JWT.
func (h *Handler) login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	token := middleware.NormalizeToken(body.Token)
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		response.Unauthorized(c)
		return
	}

	signed, err := jwt.Sign("admin", sessionTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"token": signed, "expires_in": int(sessionTTL.Seconds())})
}

func (h *Handler) check(c *gin.Context) {
	response.OK(c, gin.H{"ok": 1, "subject": middleware.CurrentSubject(c)})
}
