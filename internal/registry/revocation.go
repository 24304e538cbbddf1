package registry

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/infra"
)

// RevocationManager держит in-memory кэш отозванных DID, чтобы проверка
// на горячем пути не ходила ни в Redis, ни в БД.
// Источник истины — Postgres, Redis-set и pub/sub служат для репликации
// между инстансами шлюза.
type RevocationManager struct {
	mu      sync.RWMutex
	revoked map[string]struct{}

	rdb    *redis.Client
	source func(ctx context.Context) ([]string, error)
	logger *zap.Logger
}

func NewRevocationManager(rdb *redis.Client, source func(ctx context.Context) ([]string, error), logger *zap.Logger) *RevocationManager {
	return &RevocationManager{
		revoked: make(map[string]struct{}),
		rdb:     rdb,
		source:  source,
		logger:  logger,
	}
}

// Init прогревает кэш при старте: БД как источник истины, Redis как L2.
func (m *RevocationManager) Init(ctx context.Context) error {
	dids, err := m.source(ctx)
	if err != nil {
		// БД недоступна — пробуем хотя бы Redis, чтобы не стартовать слепыми
		m.logger.Warn("revocation warm-up from DB failed, falling back to Redis", zap.Error(err))
		dids, err = m.rdb.SMembers(ctx, infra.RedisKeyRevokedAgents).Result()
		if err != nil {
			return err
		}
		m.replace(dids)
		return nil
	}

	return infra.WarmupState(ctx, m.rdb, m.logger, dids,
		infra.RedisKeyRevokedAgents, infra.RedisKeyLockRevokedWarmup,
		m.replace)
}

func (m *RevocationManager) replace(dids []string) {
	next := make(map[string]struct{}, len(dids))
	for _, did := range dids {
		next[did] = struct{}{}
	}
	m.mu.Lock()
	m.revoked = next
	m.mu.Unlock()
}

// MarkRevoked обновляет локальный потокобезопасный кэш
func (m *RevocationManager) MarkRevoked(did string) {
	m.mu.Lock()
	m.revoked[did] = struct{}{}
	m.mu.Unlock()
}

// IsRevoked — проверка на горячем пути, только RAM.
func (m *RevocationManager) IsRevoked(did string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[did]
	return ok
}

// StartListener подписывается на сигналы отзыва от Console API и держит
// подписку живой через переподключения. Блокирует, запускать в горутине.
func (m *RevocationManager) StartListener(ctx context.Context) {
	infra.ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanRevoke,
		func() error { return m.Init(ctx) },
		func(did string, revoked bool) {
			if !revoked {
				// Отзыв необратим: сигнал "off" игнорируем, но фиксируем
				m.logger.Warn("ignoring un-revoke signal, revocation is terminal",
					zap.String("did", did))
				return
			}
			m.logger.Warn("received revoke signal", zap.String("did", did))
			m.MarkRevoked(did)
		})
}
