package domain

// GlobalStats — агрегаты для дашборда консоли
type GlobalStats struct {
	TotalIntents    int64            `json:"total_intents"`
	DeniedIntents   int64            `json:"denied_intents"`
	EscalatedCount  int64            `json:"escalated_count"`
	DegradedScoring int64            `json:"degraded_scoring"` // решений без модельного прохода
	RiskRatio       float64          `json:"risk_ratio"`
	TopTools        map[string]int64 `json:"top_tools"`
	HourlyActivity  []ActivityPoint  `json:"hourly_activity"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
