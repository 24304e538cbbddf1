package registry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/infra"
)

// ReplayGuard отсекает повторную подачу того же intent_id внутри
// сессионного окна. SETNX в Redis дает атомарность между инстансами.
type ReplayGuard struct {
	rdb    *redis.Client
	window time.Duration
	logger *zap.Logger
}

func NewReplayGuard(rdb *redis.Client, window time.Duration, logger *zap.Logger) *ReplayGuard {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &ReplayGuard{rdb: rdb, window: window, logger: logger}
}

// FirstSeen возвращает true, если интент встречен впервые.
// При недоступности Redis пропускаем (fail-open): реплей-атака дороже
// обрабатывается политиками, а полная остановка шлюза дороже всего.
func (g *ReplayGuard) FirstSeen(ctx context.Context, did, intentID string) bool {
	key := infra.IntentSeenKey(did, intentID)
	ok, err := g.rdb.SetNX(ctx, key, "1", g.window).Result()
	if err != nil {
		g.logger.Warn("replay guard unavailable, letting intent through",
			zap.String("intent_id", intentID), zap.Error(err))
		return true
	}
	return ok
}
