package engine

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/policy"
)

// StartPolicyListener держит горячий снапшот политик синхронным с БД:
// Console API публикует сигнал после каждой публикации новой версии.
// Блокирует, запускать в горутине.
func StartPolicyListener(ctx context.Context, rdb *redis.Client, store *policy.Store, logger *zap.Logger) {
	infra.ListenResilient(ctx, rdb, logger, infra.RedisChanPolicyUpdate,
		// При каждом (пере)подключении перечитываем активную версию:
		// сигналы, пропущенные за время обрыва, уже ничего не значат.
		func() error { return store.Refresh(ctx) },
		func(payload string) {
			logger.Info("policy update signal received", zap.String("version", payload))
			if err := store.Refresh(ctx); err != nil {
				logger.Error("policy refresh failed", zap.Error(err))
			}
		})
}
