package domain

import (
	"errors"
	"time"
)

// Статусы State Machine эскалаций
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
)

// ApprovalRequest — интент из эскалационной полосы (ESCALATE), ждущий оператора.
type ApprovalRequest struct {
	ID       string         `json:"id"`
	IntentID string         `json:"intent_id"` // ссылка на зависший интент в шлюзе
	AgentDID string         `json:"agent_did"`
	Tool     string         `json:"tool"`
	Payload  string         `json:"payload"` // сериализованные аргументы интента
	Risk     RiskAssessment `json:"risk"`    // почему вообще эскалировали
	Status   ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyProcessed
	}
	if next == ApprovalPending {
		return ErrInvalidTransition
	}
	return nil
}
