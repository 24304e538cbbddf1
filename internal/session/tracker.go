package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State — этап жизненного цикла интента внутри шлюза
type State string

const (
	StateReceived      State = "RECEIVED"
	StatePolicyChecked State = "POLICY_CHECKED"
	StateRiskScored    State = "RISK_SCORED"
	StateApproved      State = "APPROVED"
	StateDenied        State = "DENIED"    // терминальное
	StateEscalated     State = "ESCALATED" // ждёт оператора, затем закрывается
	StateDispatched    State = "DISPATCHED"
	StateReported      State = "REPORTED"
	StateClosed        State = "CLOSED" // терминальное
)

var (
	ErrDuplicateSession = errors.New("session already exists for intent")
	ErrUnknownSession   = errors.New("no session for intent")
	ErrBadTransition    = errors.New("illegal session transition")
	ErrReportConsumed   = errors.New("execution report already consumed")
)

// transitions — допустимые переходы. Всё, чего тут нет, запрещено.
var transitions = map[State][]State{
	StateReceived:      {StatePolicyChecked, StateDenied},
	StatePolicyChecked: {StateRiskScored, StateDenied},
	StateRiskScored:    {StateApproved, StateDenied, StateEscalated},
	StateApproved:      {StateDispatched, StateClosed},
	StateEscalated:     {StateClosed},
	StateDispatched:    {StateReported, StateClosed},
	StateReported:      {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Record — живое состояние одной сессии интента
type Record struct {
	IntentID string
	AgentDID string
	Tool     string
	TraceID  string
	State    State

	StartedAt time.Time
	ExpiresAt time.Time // срок действия манифеста, после APPROVED

	reportConsumed bool
}

// Tracker держит сессии в RAM. Терминальные записи удаляются сразу,
// чтобы память была ограничена числом интентов в полёте.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Record
	logger   *zap.Logger

	// Вызывается sweeper-ом для каждой протухшей авторизации
	// (аудит и телеметрия живут снаружи, трекер о них не знает).
	onExpire func(rec Record)
}

func NewTracker(logger *zap.Logger, onExpire func(rec Record)) *Tracker {
	return &Tracker{
		sessions: make(map[string]*Record),
		logger:   logger,
		onExpire: onExpire,
	}
}

// Begin открывает сессию. Повторный intent_id в полёте — ошибка.
func (t *Tracker) Begin(intentID, agentDID, tool, traceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[intentID]; ok {
		return ErrDuplicateSession
	}
	t.sessions[intentID] = &Record{
		IntentID:  intentID,
		AgentDID:  agentDID,
		Tool:      tool,
		TraceID:   traceID,
		State:     StateReceived,
		StartedAt: time.Now().UTC(),
	}
	return nil
}

// Advance переводит сессию в следующее состояние с валидацией перехода.
func (t *Tracker) Advance(intentID string, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[intentID]
	if !ok {
		return ErrUnknownSession
	}
	if !canTransition(rec.State, to) {
		return ErrBadTransition
	}
	rec.State = to
	if to == StateDenied || to == StateClosed {
		delete(t.sessions, intentID)
	}
	return nil
}

// Authorize фиксирует одобрение и дедлайн манифеста для sweeper-а.
func (t *Tracker) Authorize(intentID string, expiresAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[intentID]
	if !ok {
		return ErrUnknownSession
	}
	if !canTransition(rec.State, StateApproved) {
		return ErrBadTransition
	}
	rec.State = StateApproved
	rec.ExpiresAt = expiresAt
	return nil
}

// Escalate переводит сессию в ожидание оператора с дедлайном решения.
// Брошенные эскалации закрывает тот же sweeper, что и протухшие манифесты.
func (t *Tracker) Escalate(intentID string, decideBy time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[intentID]
	if !ok {
		return ErrUnknownSession
	}
	if !canTransition(rec.State, StateEscalated) {
		return ErrBadTransition
	}
	rec.State = StateEscalated
	rec.ExpiresAt = decideBy
	return nil
}

// ConsumeReport помечает отчёт исполнителя потреблённым. Ровно один раз:
// второй отчёт по тому же интенту отклоняется.
func (t *Tracker) ConsumeReport(intentID string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[intentID]
	if !ok {
		return Record{}, ErrUnknownSession
	}
	if rec.reportConsumed {
		return Record{}, ErrReportConsumed
	}
	if rec.State != StateDispatched && rec.State != StateApproved {
		return Record{}, ErrBadTransition
	}
	rec.reportConsumed = true
	rec.State = StateReported
	snapshot := *rec
	// REPORTED → CLOSED схлопываем сразу, отдельного шага агенту не нужно
	delete(t.sessions, intentID)
	return snapshot, nil
}

// Lookup возвращает копию записи.
func (t *Tracker) Lookup(intentID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[intentID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// InFlight — число открытых сессий, для метрик.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// sweep закрывает сессии с истёкшим дедлайном: авторизации, по которым
// агент не отчитался, и эскалации, которые оператор так и не разобрал.
// В записях остаётся состояние на момент протухания, чтобы callback
// различал, что именно истекло.
func (t *Tracker) sweep(now time.Time) []Record {
	t.mu.Lock()
	var expired []Record
	for id, rec := range t.sessions {
		if rec.ExpiresAt.IsZero() || now.Before(rec.ExpiresAt) {
			continue
		}
		switch rec.State {
		case StateApproved, StateDispatched, StateEscalated:
		default:
			continue
		}
		expired = append(expired, *rec)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	for _, rec := range expired {
		t.logger.Warn("session deadline expired",
			zap.String("intent_id", rec.IntentID),
			zap.String("agent_did", rec.AgentDID),
			zap.String("state", string(rec.State)))
		if t.onExpire != nil {
			t.onExpire(rec)
		}
	}
	return expired
}

// StartSweeper запускает фоновое закрытие зависших авторизаций.
// Блокирует, запускать в горутине.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweep(now.UTC())
		}
	}
}
