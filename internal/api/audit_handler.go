package api

import (
	"context"
	"net/http"

	"tidebase/internal/model"
	"tidebase/internal/repository"

	"github.com/gin-gonic/gin"
)

type AuditProvider interface {
	Query(ctx context.Context, table, operation string, limit int) ([]model.AuditRecord, error)
	Summary(ctx context.Context) ([]repository.OperationCount, error)
}

type AuditHandler struct {
	service AuditProvider
}

func NewAuditHandler(service AuditProvider) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) ListAudits(c *gin.Context) {
	records, err := h.service.Query(c.Request.Context(),
		c.Query("table"),
		c.Query("operation"),
		queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *AuditHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
