package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/infra/auth"
)

// AgentRepository описывает требования к хранилищу данных об агентах
type AgentRepository interface {
	GetByDID(ctx context.Context, did string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	UpdateStatus(ctx context.Context, did string, status domain.AgentStatus, revokedAt *time.Time) error
	GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error)
}

type AgentService struct {
	*auth.ConsoleValidator
	repo   AgentRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewAgentService(rdb *redis.Client, repo AgentRepository, validator *auth.ConsoleValidator, logger *zap.Logger) *AgentService {
	return &AgentService{
		ConsoleValidator: validator,
		repo:             repo,
		rdb:              rdb,
		logger:           logger.Named("agent-service"),
	}
}

// RevokeAgent необратимо отзывает идентичность: БД + Redis-set + сигнал шлюзам.
func (s *AgentService) RevokeAgent(ctx context.Context, did string) error {
	// 1. Persistence Layer (источник истины)
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, did, domain.StatusRevoked, &now); err != nil {
		s.logger.Error("failed to revoke agent in DB",
			zap.String("did", did), zap.Error(err))
		return fmt.Errorf("revoke database error: %w", err)
	}

	// 2. L2-кэш для прогрева новых инстансов шлюза
	if err := s.rdb.SAdd(ctx, infra.RedisKeyRevokedAgents, did).Err(); err != nil {
		s.logger.Warn("failed to update revoked set in Redis", zap.Error(err))
	}

	// 3. Real-time Signaling работающим шлюзам
	payload := fmt.Sprintf("%s:true", did)
	if err := s.rdb.Publish(ctx, infra.RedisChanRevoke, payload).Err(); err != nil {
		s.logger.Warn("revoke signal delivery failed",
			zap.String("did", did), zap.Error(err))
	} else {
		s.logger.Info("agent revoked", zap.String("did", did))
	}
	return nil
}

func (s *AgentService) GetAgent(ctx context.Context, did string) (*domain.Agent, error) {
	agent, err := s.repo.GetByDID(ctx, did)
	if err != nil {
		s.logger.Error("failed to fetch agent details", zap.String("did", did), zap.Error(err))
		return nil, err
	}
	return agent, nil
}

// ListAgents возвращает реестр для основной таблицы Console API.
func (s *AgentService) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}

	// Фронтенд всегда получает [], а не null
	if agents == nil {
		return []*domain.Agent{}, nil
	}
	return agents, nil
}

func (s *AgentService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	// здесь можно добавить кэширование в Redis на 1 минуту,
	// чтобы не нагружать Postgres тяжелыми аналитическими запросами.
	return s.repo.GetGlobalStats(ctx)
}

// DecideApproval фиксирует решение оператора по эскалированному интенту.
// reviewerID сохраняется для подотчетности (Accountability).
func (s *AgentService) DecideApproval(ctx context.Context, approvalID string, approved bool, reviewerID, comment string) error {
	// 1. Определяем финальный статус на основе решения
	status := domain.ApprovalRejected
	if approved {
		status = domain.ApprovalApproved
	}

	// 2. Атомарно обновляем БД.
	// UpdateApprovalStatus возвращает intent_id для Redis-сигнала
	intentID, err := s.repo.UpdateApprovalStatus(ctx, approvalID, status, reviewerID, comment)
	if err != nil {
		s.logger.Error("failed to persist approval decision",
			zap.String("approval_id", approvalID),
			zap.String("reviewer_id", reviewerID),
			zap.Error(err))
		return fmt.Errorf("database update failed: %w", err)
	}

	// 3. Широковещательный сигнал шлюзам: "{intent_id}:{true|false}"
	broadcast := fmt.Sprintf("%s:%t", intentID, approved)
	if err := s.rdb.Publish(ctx, infra.RedisChanApprovalDecisions, broadcast).Err(); err != nil {
		// Если Redis недоступен, эскалация закроется по TTL (Fail-Safe)
		s.logger.Error("critical: decision saved but signal not delivered",
			zap.String("intent_id", intentID),
			zap.Error(err))
		return fmt.Errorf("redis signal failure: %w", err)
	}

	// 4. Персональный канал интента: его вычитывает заждавшийся SDK агента
	if err := s.rdb.Publish(ctx, infra.ApprovalDecisionChan(intentID), string(status)).Err(); err != nil {
		s.logger.Warn("per-intent decision signal failed",
			zap.String("intent_id", intentID), zap.Error(err))
	}

	s.logger.Info("HITL decision processed successfully",
		zap.String("intent_id", intentID),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(status)))
	return nil
}

func (s *AgentService) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return s.repo.GetApprovalByID(ctx, id)
}

func (s *AgentService) GetApprovals(ctx context.Context, status string) ([]*domain.ApprovalRequest, error) {
	// Приводим к верхнему регистру, так как в константах PENDING/APPROVED
	status = strings.ToUpper(status)
	return s.repo.FindApprovals(ctx, domain.ApprovalStatus(status))
}
