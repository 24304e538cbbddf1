package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/audit"
	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/infra"
	"github.com/xela07ax/aeon-gateway/internal/session"
)

// ApprovalStore — персистенция эскалаций (PostgreSQL).
type ApprovalStore interface {
	CreateApproval(ctx context.Context, req *domain.ApprovalRequest) error
}

// EscalationManager ведёт HITL-петлю: интент из эскалационной полосы
// уходит в очередь оператора, решение прилетает обратно по Redis.
// Одобрение даёт агенту ОДНО право переподать интент с тем же intent_id.
type EscalationManager struct {
	store    ApprovalStore
	rdb      *redis.Client
	sessions *session.Tracker
	auditor  *audit.Recorder
	logger   *zap.Logger

	mu        sync.Mutex
	overrides map[string]struct{} // intent_id, одобренные оператором
}

func NewEscalationManager(store ApprovalStore, rdb *redis.Client, sessions *session.Tracker, auditor *audit.Recorder, logger *zap.Logger) *EscalationManager {
	return &EscalationManager{
		store:     store,
		rdb:       rdb,
		sessions:  sessions,
		auditor:   auditor,
		logger:    logger,
		overrides: make(map[string]struct{}),
	}
}

// Escalate ставит интент в очередь оператора.
func (m *EscalationManager) Escalate(ctx context.Context, in *domain.Intent, risk domain.RiskAssessment) error {
	now := time.Now().UTC()
	req := &domain.ApprovalRequest{
		ID:        uuid.New().String(),
		IntentID:  in.ID,
		AgentDID:  in.AgentDID,
		Tool:      in.Tool,
		Payload:   string(in.Arguments),
		Risk:      risk,
		Status:    domain.ApprovalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateApproval(ctx, req); err != nil {
		return err
	}
	m.logger.Info("intent escalated to operator",
		zap.String("intent_id", in.ID),
		zap.String("agent_did", in.AgentDID),
		zap.Float64("risk", risk.FinalScore))
	return nil
}

// ConsumeOverride проверяет и гасит одобрение оператора. Одноразовое:
// второй вызов по тому же intent_id вернёт false.
func (m *EscalationManager) ConsumeOverride(intentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[intentID]; !ok {
		return false
	}
	delete(m.overrides, intentID)
	return true
}

// StartDecisionListener слушает решения операторов из Console API.
// Формат сигнала: "{intent_id}:{true|false}". Блокирует, запускать в горутине.
func (m *EscalationManager) StartDecisionListener(ctx context.Context) {
	infra.ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanApprovalDecisions,
		func() error { return nil }, // решения не реплеятся, догонять нечего
		func(intentID string, approved bool) {
			m.applyDecision(ctx, intentID, approved)
		})
}

func (m *EscalationManager) applyDecision(ctx context.Context, intentID string, approved bool) {
	outcome := string(domain.ApprovalRejected)
	if approved {
		outcome = string(domain.ApprovalApproved)
		m.mu.Lock()
		m.overrides[intentID] = struct{}{}
		m.mu.Unlock()

		// Снимаем replay-метку: агенту разрешена ровно одна переподача
		rec, ok := m.sessions.Lookup(intentID)
		if ok {
			if err := m.rdb.Del(ctx, infra.IntentSeenKey(rec.AgentDID, intentID)).Err(); err != nil {
				m.logger.Warn("failed to clear replay mark for approved intent",
					zap.String("intent_id", intentID), zap.Error(err))
			}
		}
	}

	// Эскалированная сессия закрывается решением оператора
	if err := m.sessions.Advance(intentID, session.StateClosed); err != nil {
		m.logger.Warn("escalated session already gone",
			zap.String("intent_id", intentID), zap.Error(err))
	}

	m.auditor.Log(audit.Entry{
		ID:       uuid.New().String(),
		IntentID: intentID,
		Stage:    audit.StageClosed,
		Outcome:  outcome,
		Payload:  map[string]interface{}{"source": "operator_decision"},
		Timestamp: time.Now().UTC(),
	})

	m.logger.Info("operator decision applied",
		zap.String("intent_id", intentID),
		zap.Bool("approved", approved))
}

// payloadMap раскрывает сериализованные аргументы для консоли и аудита.
func payloadMap(raw json.RawMessage) map[string]interface{} {
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}
