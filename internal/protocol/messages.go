package protocol

import (
	"encoding/json"
	"time"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// IntentParams — параметры A2G_INTENT
type IntentParams struct {
	AgentDID  string                `json:"agent_did"`
	IntentID  string                `json:"intent_id,omitempty"` // генерируем, если агент не прислал
	Tool      string                `json:"tool"`
	Arguments json.RawMessage       `json:"arguments"`
	Context   *domain.IntentContext `json:"context,omitempty"`
}

// Validate проверяет обязательные поля до какой-либо политики
func (p *IntentParams) Validate() *Error {
	if p.AgentDID == "" {
		return NewError(CodeInvalidParams, "agent_did is required")
	}
	if p.Tool == "" {
		return NewError(CodeInvalidParams, "tool is required")
	}
	return nil
}

// ReportParams — параметры A2G_REPORT
type ReportParams struct {
	AgentDID string                   `json:"agent_did"`
	IntentID string                   `json:"intent_id"`
	Status   domain.ExecutionStatus   `json:"status"`
	Result   json.RawMessage          `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Metrics  *domain.ExecutionMetrics `json:"metrics,omitempty"`
}

func (p *ReportParams) Validate() *Error {
	if p.AgentDID == "" || p.IntentID == "" {
		return NewError(CodeInvalidParams, "agent_did and intent_id are required")
	}
	switch p.Status {
	case domain.ExecSuccess, domain.ExecFailure, domain.ExecTimeout, domain.ExecAborted:
	default:
		return NewError(CodeInvalidParams, "unknown execution status %q", p.Status)
	}
	return nil
}

// RegisterParams — параметры A2G_REGISTER
type RegisterParams struct {
	AgentDID              string                 `json:"agent_did"`
	PublicKey             string                 `json:"public_key"`
	CapabilitiesRequested []string               `json:"capabilities_requested"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

func (p *RegisterParams) Validate() *Error {
	if p.AgentDID == "" {
		return NewError(CodeInvalidParams, "agent_did is required")
	}
	if p.PublicKey == "" {
		return NewError(CodeInvalidParams, "public_key is required")
	}
	if len(p.CapabilitiesRequested) == 0 {
		return NewError(CodeInvalidParams, "capabilities_requested must not be empty")
	}
	return nil
}

// RiskAssessmentResult — вложение риска в вердикт (стабильные имена полей протокола)
type RiskAssessmentResult struct {
	Score          float64  `json:"score"`
	Level          string   `json:"level"`
	ModelScore     *float64 `json:"model_score,omitempty"`
	HeuristicScore float64  `json:"heuristic_score"`
	Threats        []string `json:"threats"`
}

// ManifestResult — вложение манифеста в вердикт
type ManifestResult struct {
	MaxMemoryMB     int       `json:"max_memory_mb"`
	MaxCPUPercent   int       `json:"max_cpu_percent"`
	TimeoutSeconds  int       `json:"timeout_seconds"`
	NetworkAllowed  bool      `json:"network_allowed"`
	FilesystemScope []string  `json:"filesystem_scope"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// VerdictResult — тело G2A_VERDICT
type VerdictResult struct {
	Verdict    string               `json:"verdict"`
	IntentID   string               `json:"intent_id"`
	Risk       RiskAssessmentResult `json:"risk_assessment"`
	Manifest   *ManifestResult      `json:"capability_manifest,omitempty"`
	Conditions []string             `json:"conditions,omitempty"`
	Reasoning  string               `json:"reasoning,omitempty"`
	ExpiresAt  *time.Time           `json:"expires_at,omitempty"`
}

// NewVerdictResult конвертирует доменный вердикт в wire-представление
func NewVerdictResult(v *domain.Verdict) *VerdictResult {
	res := &VerdictResult{
		Verdict:  string(v.Outcome),
		IntentID: v.IntentID,
		Risk: RiskAssessmentResult{
			Score:          v.Risk.FinalScore,
			Level:          string(v.Risk.Level),
			ModelScore:     v.Risk.ModelScore,
			HeuristicScore: v.Risk.HeuristicScore,
			Threats:        v.Risk.Threats,
		},
		Conditions: v.Conditions,
		Reasoning:  v.Reasoning,
		ExpiresAt:  v.ExpiresAt,
	}
	if res.Risk.Threats == nil {
		// фронт и SDK ждут [], а не null
		res.Risk.Threats = []string{}
	}
	if m := v.Manifest; m != nil {
		res.Manifest = &ManifestResult{
			MaxMemoryMB:     m.MaxMemoryMB,
			MaxCPUPercent:   m.MaxCPUPercent,
			TimeoutSeconds:  m.TimeoutSeconds,
			NetworkAllowed:  m.NetworkAllowed,
			FilesystemScope: m.FilesystemScope,
			ExpiresAt:       m.ExpiresAt,
		}
	}
	return res
}

// PolicyResult — тело G2A_POLICY (ответ на регистрацию)
type PolicyResult struct {
	AgentDID         string   `json:"agent_did"`
	Version          int64    `json:"version"`
	Capabilities     []string `json:"capabilities"`
	ConstitutionHash string   `json:"constitution_hash"`
}
