package service

import (
	"context"
	"fmt"
	"strings"

	"tidebase/internal/model"
	"tidebase/internal/repository"
)

// AuditService answers audit history queries for the dashboard.
type AuditService struct {
	repo repository.AuditInterface
}

func NewAuditService(repo repository.AuditInterface) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) Query(ctx context.Context, table, operation string, limit int) ([]model.AuditRecord, error) {
	if operation != "" {
		operation = strings.ToUpper(operation)
		if !model.ValidOperation(operation) {
			return nil, fmt.Errorf("%w: unknown operation %q", ErrValidation, operation)
		}
	}
	return s.repo.Query(ctx, repository.AuditFilter{
		Table:     table,
		Operation: operation,
		Limit:     limit,
	})
}

func (s *AuditService) Summary(ctx context.Context) ([]repository.OperationCount, error) {
	return s.repo.Summary(ctx)
}
