package domain

import "time"

// Outcome — итог решения по интенту
type Outcome string

const (
	OutcomeApproved    Outcome = "APPROVED"
	OutcomeDenied      Outcome = "DENIED"
	OutcomeEscalate    Outcome = "ESCALATE"    // требует решения оператора (HITL)
	OutcomeConditional Outcome = "CONDITIONAL" // зарезервировано политиками
)

// CapabilityManifest — ресурсно-пермиссионная граница для ОДНОГО одобренного интента.
// Никогда не переиспользуется: одно исполнение — один манифест.
type CapabilityManifest struct {
	MaxMemoryMB     int       `json:"max_memory_mb"`
	MaxCPUPercent   int       `json:"max_cpu_percent"`
	TimeoutSeconds  int       `json:"timeout_seconds"`
	NetworkAllowed  bool      `json:"network_allowed"`
	FilesystemScope []string  `json:"filesystem_scope"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Verdict — финальное решение пайплайна. После выпуска неизменен.
type Verdict struct {
	IntentID   string              `json:"intent_id"`
	AgentDID   string              `json:"agent_did"`
	Outcome    Outcome             `json:"verdict"`
	Risk       RiskAssessment      `json:"risk_assessment"`
	Manifest   *CapabilityManifest `json:"capability_manifest,omitempty"` // только для APPROVED
	Conditions []string            `json:"conditions,omitempty"`
	Reasoning  string              `json:"reasoning"`

	// Версия снапшота политик, под которой принято решение.
	// Нужна для воспроизводимости аудита.
	PolicyVersion int64 `json:"policy_version"`

	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ExecutionStatus — статус, который внешний исполнитель репортит обратно
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "SUCCESS"
	ExecFailure ExecutionStatus = "FAILURE"
	ExecTimeout ExecutionStatus = "TIMEOUT"
	ExecAborted ExecutionStatus = "ABORTED"
)

// ExecutionMetrics — замеры исполнителя
type ExecutionMetrics struct {
	DurationMs   int64    `json:"duration_ms"`
	MemoryUsedMB *int     `json:"memory_used_mb,omitempty"`
	CPUPercent   *float64 `json:"cpu_percent,omitempty"`
}

// ExecutionReport закрывает жизненный цикл интента. Потребляется ровно один раз.
type ExecutionReport struct {
	IntentID string            `json:"intent_id"`
	AgentDID string            `json:"agent_did"`
	Status   ExecutionStatus   `json:"status"`
	Result   interface{}       `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metrics  *ExecutionMetrics `json:"metrics,omitempty"`

	// Implicit выставляется, когда шлюз сам закрыл зависшую авторизацию по expires_at
	Implicit bool `json:"implicit,omitempty"`
}
