package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/aeon-gateway/internal/audit"
	"github.com/xela07ax/aeon-gateway/internal/repository/postgres"
)

// AuditLogProvider описывает контракт для чтения трейла.
// Используем структуру Entry из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	Find(ctx context.Context, f postgres.AuditFilter) ([]audit.Entry, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchLogs запрашивает записи трейла с фильтрацией.
func (s *AuditService) FetchLogs(ctx context.Context, intentID, agentDID, stage string) ([]audit.Entry, error) {
	logs, err := s.repo.Find(ctx, postgres.AuditFilter{
		IntentID: intentID,
		AgentDID: agentDID,
		Stage:    stage,
	})
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
