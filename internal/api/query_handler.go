package api

import (
	"context"
	"net/http"

	"tidebase/internal/dto/resp"

	"github.com/gin-gonic/gin"
)

type QueryProvider interface {
	Names() []string
	Run(ctx context.Context, name string) ([]map[string]any, error)
}

type QueryHandler struct {
	service QueryProvider
}

func NewQueryHandler(service QueryProvider) *QueryHandler {
	return &QueryHandler{service: service}
}

func (h *QueryHandler) ListQueries(c *gin.Context) {
	c.JSON(http.StatusOK, resp.QueryListResponse{Queries: h.service.Names()})
}

func (h *QueryHandler) RunQuery(c *gin.Context) {
	name := c.Param("name")
	rows, err := h.service.Run(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.QueryResultResponse{Name: name, Rows: rows})
}
