package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/infra"
)

// PolicyRepository описывает требования сервиса к хранилищу снапшотов
type PolicyRepository interface {
	LoadActive(ctx context.Context) (*domain.Snapshot, error)
	GetSnapshotByVersion(ctx context.Context, version int64) (*domain.Snapshot, error)
	PublishSnapshot(ctx context.Context, snap *domain.Snapshot) (int64, error)
}

type PolicyService struct {
	repo PolicyRepository
	rdb  *redis.Client
}

func NewPolicyService(repo PolicyRepository, rdb *redis.Client) *PolicyService {
	return &PolicyService{
		repo: repo,
		rdb:  rdb,
	}
}

// GetActive возвращает действующую конституцию
func (s *PolicyService) GetActive(ctx context.Context) (*domain.Snapshot, error) {
	return s.repo.LoadActive(ctx)
}

// GetByVersion достает историческую версию (для разбора аудита)
func (s *PolicyService) GetByVersion(ctx context.Context, version int64) (*domain.Snapshot, error) {
	return s.repo.GetSnapshotByVersion(ctx, version)
}

// Publish сохраняет новую версию конституции и уведомляет шлюзы
func (s *PolicyService) Publish(ctx context.Context, snap *domain.Snapshot) (int64, error) {
	version, err := s.repo.PublishSnapshot(ctx, snap)
	if err != nil {
		return 0, err
	}
	return version, s.notifyUpdate(ctx, version)
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы шлюза, подписанные на канал, вызовут Refresh() своего Store.
func (s *PolicyService) notifyUpdate(ctx context.Context, version int64) error {
	// В payload кладем версию только для логов: шлюз все равно перечитает БД
	return s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, fmt.Sprintf("%d", version)).Err()
}
