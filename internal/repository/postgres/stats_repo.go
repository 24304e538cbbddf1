package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// GetGlobalStats собирает агрегаты дашборда по аудит-трейлу за последние сутки.
func (r *Repo) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	s := &domain.GlobalStats{
		TopTools:       make(map[string]int64),
		HourlyActivity: make([]domain.ActivityPoint, 0),
	}

	// 1. Итоги по решениям: считаем только стадию DECIDED, чтобы один
	// интент давал ровно одну единицу в счетчиках
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'DENIED'),
			COUNT(*) FILTER (WHERE outcome = 'ESCALATE'),
			COUNT(*) FILTER (WHERE payload->>'model_score' IS NULL)
		FROM audit_entries
		WHERE stage = 'DECIDED' AND timestamp > NOW() - INTERVAL '24 hours'`).Scan(
		&s.TotalIntents, &s.DeniedIntents, &s.EscalatedCount, &s.DegradedScoring)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats totals failed: %w", err)
	}
	if s.TotalIntents > 0 {
		s.RiskRatio = float64(s.DeniedIntents+s.EscalatedCount) / float64(s.TotalIntents)
	}

	// 2. Самые используемые инструменты
	rows, err := r.pool.Query(ctx, `
		SELECT tool, COUNT(*)
		FROM audit_entries
		WHERE stage = 'DECIDED' AND timestamp > NOW() - INTERVAL '24 hours'
		GROUP BY tool ORDER BY COUNT(*) DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats top tools failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tool string
		var count int64
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, err
		}
		s.TopTools[tool] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 3. Почасовая активность
	hrows, err := r.pool.Query(ctx, `
		SELECT to_char(date_trunc('hour', timestamp), 'HH24:00'), COUNT(*)
		FROM audit_entries
		WHERE stage = 'RECEIVED' AND timestamp > NOW() - INTERVAL '24 hours'
		GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats hourly failed: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var p domain.ActivityPoint
		if err := hrows.Scan(&p.Hour, &p.Count); err != nil {
			return nil, err
		}
		s.HourlyActivity = append(s.HourlyActivity, p)
	}
	return s, hrows.Err()
}
