package domain

// RiskLevel — классификация итогового скора по фиксированным порогам.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// RiskLevelFromScore — пороги зафиксированы протоколом A2G, не конфигурируются
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.9:
		return RiskCritical
	case score >= 0.7:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskAssessment — результат гибридного скоринга.
// FinalScore = max(heuristic, model): модель может только поднять подозрение,
// но не опустить детерминированный пол безопасности.
type RiskAssessment struct {
	HeuristicScore float64   `json:"heuristic_score"`
	ModelScore     *float64  `json:"model_score,omitempty"` // nil — модель недоступна или таймаут
	FinalScore     float64   `json:"score"`
	Level          RiskLevel `json:"level"`
	Threats        []string  `json:"threats"` // метки сработавших паттернов, по убыванию тяжести
}

// Degraded сообщает, что скоринг прошел без модельного прохода
func (r *RiskAssessment) Degraded() bool {
	return r.ModelScore == nil
}
