package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type SignalType string

const (
	SignalIntentReceived    SignalType = "IntentReceived"
	SignalRiskAssessment    SignalType = "RiskAssessment"
	SignalIntentBlocked     SignalType = "IntentBlocked"
	SignalIntentAllowed     SignalType = "IntentAllowed"
	SignalExecutionComplete SignalType = "ExecutionComplete"
	SignalPolicyViolation   SignalType = "PolicyViolation"
)

// Signal — одно телеметрическое событие. Все сигналы коррелируются по intent_id.
type Signal struct {
	Type      SignalType             `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	IntentID  string                 `json:"intent_id,omitempty"`
	AgentDID  string                 `json:"agent_did,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster — best-effort фан-аут живых сигналов.
// Продюсер НИКОГДА не блокируется: медленный или отсутствующий подписчик
// просто теряет сигналы (у каждого свой ограниченный буфер).
// Это телеметрия, а не аудит — гарантии доставки здесь не место.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Signal
	nextID int
	buffer int

	rdb     *redis.Client // опционально: зеркалирование в Redis Pub/Sub для внешних дашбордов
	channel string
	logger  *zap.Logger
}

func NewBroadcaster(buffer int, rdb *redis.Client, channel string, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:    make(map[int]chan Signal),
		buffer:  buffer,
		rdb:     rdb,
		channel: channel,
		logger:  logger.Named("telemetry"),
	}
}

// Subscribe возвращает канал сигналов и функцию отписки.
func (b *Broadcaster) Subscribe() (<-chan Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Signal, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit рассылает сигнал. Неблокирующая отправка в каждого подписчика,
// затем best-effort публикация в Redis в отдельной горутине.
func (b *Broadcaster) Emit(sig Signal) {
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- sig:
		default:
			// Подписчик не успевает — его проблема, пайплайн не ждет
		}
	}
	b.mu.RUnlock()

	if b.rdb != nil && b.channel != "" {
		go b.mirror(sig)
	}
}

func (b *Broadcaster) mirror(sig Signal) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		// Недоступность телеметрии никогда не блокирует пайплайн
		b.logger.Debug("telemetry mirror failed", zap.Error(err))
	}
}
