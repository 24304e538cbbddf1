package audit

import "time"

// Stage — откуда в жизненном цикле интента пришло событие.
// Каждый переход конечного автомата дает ровно одну запись, молчаливых переходов нет.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StagePolicyChecked Stage = "POLICY_CHECKED"
	StageRiskScored    Stage = "RISK_SCORED"
	StageDecided       Stage = "DECIDED"
	StageDispatched    Stage = "DISPATCHED"
	StageReported      Stage = "REPORTED"
	StageClosed        Stage = "CLOSED"
	StageRegistered    Stage = "REGISTERED"
	StageRevoked       Stage = "REVOKED"
)

// Entry — одна строка compliance-трейла. Append-only: записи никогда
// не мутируются и не удаляются.
type Entry struct {
	ID       string `json:"id"`       // UUID записи
	TraceID  string `json:"trace_id"` // Сквозной ID запроса
	IntentID string `json:"intent_id"`
	AgentDID string `json:"agent_did"`
	Tool     string `json:"tool"`
	Stage    Stage  `json:"stage"`

	// Решение (заполняется со стадии DECIDED)
	Outcome       string `json:"outcome,omitempty"`
	PolicyVersion int64  `json:"policy_version,omitempty"`
	Reasoning     string `json:"reasoning,omitempty"`

	// Сериализованные детали: аргументы, риск, отчет — что было на этой стадии
	Payload map[string]interface{} `json:"payload,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}
