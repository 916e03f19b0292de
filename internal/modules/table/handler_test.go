package table

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegisterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewStore(newMemKV()), nil, nil, nil, zap.NewNop())
	h.RegisterRoutes(r.Group("/api"), func(c *gin.Context) { c.Next() })

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"GET /api/tables",
		"POST /api/tables",
		"POST /api/tables/:id/generate",
		"POST /api/tables/:id/extract",
		"POST /api/tables/:id/cells/:paperId/:columnId",
		"GET /api/tables/:id/runs/latest",
		"GET /api/runs",
		"GET /api/runs/:id",
	} {
		assert.True(t, registered[want], want)
	}
}
