package postgres

/*
Файл approval_repo.go содержит реализацию методов для механизма Human-in-the-loop
(HITL, «человек в контуре»): эскалированные интенты ждут решения оператора.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// CreateApproval создает запись об эскалации. Оператор увидит её в
// Decision Queue консоли, пока агент держит вердикт ESCALATE.
func (r *Repo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	risk, _ := json.Marshal(app.Risk)

	query := `INSERT INTO approvals (id, intent_id, agent_did, tool, payload, risk, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, app.ID, app.IntentID, app.AgentDID, app.Tool, app.Payload, risk, string(app.Status))
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// GetApprovalByID получение деталей запроса для анализа.
func (r *Repo) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT id, intent_id, agent_did, tool, payload, risk, status, reviewer_id, comment, created_at, updated_at
	          FROM approvals WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)

	var app domain.ApprovalRequest
	var risk []byte
	var status string
	var reviewerID, comment sql.NullString // Используем для обработки NULL из БД

	err := row.Scan(
		&app.ID,
		&app.IntentID,
		&app.AgentDID,
		&app.Tool,
		&app.Payload,
		&risk,
		&status,
		&reviewerID,
		&comment,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("approval not found: %w", err)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	app.Status = domain.ApprovalStatus(status)
	_ = json.Unmarshal(risk, &app.Risk)

	// Маппим NULL значения в строки (если есть)
	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val // Берем адрес
	}
	if comment.Valid {
		val := comment.String
		app.Comment = &val
	}
	return &app, nil
}

// FindApprovals фильтрация и выборка списка запросов (Decision Queue).
func (r *Repo) FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT id, intent_id, agent_did, tool, payload, risk, status, reviewer_id, comment, created_at, updated_at
              FROM approvals`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)

	for rows.Next() {
		var app domain.ApprovalRequest
		var risk []byte
		var st string
		var reviewerID, comment sql.NullString

		err := rows.Scan(
			&app.ID, &app.IntentID, &app.AgentDID, &app.Tool,
			&app.Payload, &risk, &st, &reviewerID, &comment,
			&app.CreatedAt, &app.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}

		app.Status = domain.ApprovalStatus(st)
		_ = json.Unmarshal(risk, &app.Risk)
		if reviewerID.Valid {
			val := reviewerID.String
			app.ReviewerID = &val
		}
		if comment.Valid {
			val := comment.String
			app.Comment = &val
		}
		results = append(results, &app)
	}
	return results, nil
}

// UpdateApprovalStatus атомарно обновляет статус заявки.
// Условие WHERE status = 'PENDING' исключает Double Decision.
// Возвращает intent_id, который нужен для отправки сигнала в Redis.
func (r *Repo) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error) {
	var intentID string
	// RETURNING позволяет нам получить intent_id за один проход,
	// не делая предварительный SELECT (исключение Race Condition)
	query := `
		UPDATE approvals
		SET status = $1,
		    reviewer_id = $2,
		    comment = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING intent_id`

	err := r.pool.QueryRow(ctx, query, string(status), reviewerID, comment, id).Scan(&intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Если строк не найдено, значит либо ID неверный,
			// либо (что чаще) решение по этой заявке уже было принято ранее
			return "", fmt.Errorf("approval request not found or already processed (id: %s)", id)
		}
		return "", fmt.Errorf("postgres: failed to update approval status: %w", err)
	}
	return intentID, nil
}
