package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/registry"
)

// Create сохраняет новую идентичность агента.
func (r *Repo) Create(ctx context.Context, a *domain.Agent) error {
	caps, _ := json.Marshal(a.Capabilities)
	meta, _ := json.Marshal(a.Metadata)

	query := `INSERT INTO agents (did, public_key, status, capabilities, metadata, registered_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, a.DID, a.PublicKey, string(a.Status), caps, meta, a.RegisteredAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create agent: %w", err)
	}
	return nil
}

// GetByDID возвращает агента. Отсутствие — registry.ErrUnknownAgent.
func (r *Repo) GetByDID(ctx context.Context, did string) (*domain.Agent, error) {
	query := `SELECT did, public_key, status, capabilities, metadata, registered_at, revoked_at
	          FROM agents WHERE did = $1`

	var a domain.Agent
	var status string
	var caps, meta []byte
	var revokedAt *time.Time

	err := r.pool.QueryRow(ctx, query, did).Scan(
		&a.DID, &a.PublicKey, &status, &caps, &meta, &a.RegisteredAt, &revokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registry.ErrUnknownAgent
		}
		return nil, fmt.Errorf("postgres: agent lookup failed: %w", err)
	}

	a.Status = domain.AgentStatus(status)
	a.RevokedAt = revokedAt
	_ = json.Unmarshal(caps, &a.Capabilities)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &a.Metadata)
	}
	return &a, nil
}

// UpdateStatus меняет статус (отзыв делается только здесь)
func (r *Repo) UpdateStatus(ctx context.Context, did string, status domain.AgentStatus, revokedAt *time.Time) error {
	query := `UPDATE agents SET status = $1, revoked_at = $2 WHERE did = $3`

	ct, err := r.pool.Exec(ctx, query, string(status), revokedAt, did)
	if err != nil {
		return fmt.Errorf("postgres: failed to update agent status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return registry.ErrUnknownAgent
	}
	return nil
}

// ListDIDsByStatus — выборка только DID для прогрева кэша отзывов.
func (r *Repo) ListDIDsByStatus(ctx context.Context, status domain.AgentStatus) ([]string, error) {
	// Выбираем только DID, чтобы минимизировать трафик между БД и приложением
	query := `SELECT did FROM agents WHERE status = $1`

	rows, err := r.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch agents by status: %w", err)
	}
	defer rows.Close()

	// Инициализируем слайс, чтобы избежать возврата nil
	dids := make([]string, 0)
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("postgres: scan agent did error: %w", err)
		}
		dids = append(dids, did)
	}

	// Проверка на ошибки итерации (стандарт качества pgx)
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return dids, nil
}

// ListAgents отдает реестр для консоли.
func (r *Repo) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `SELECT did, public_key, status, capabilities, metadata, registered_at, revoked_at
	          FROM agents ORDER BY registered_at DESC LIMIT 500`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list agents: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Agent, 0)
	for rows.Next() {
		var a domain.Agent
		var status string
		var caps, meta []byte
		var revokedAt *time.Time

		if err := rows.Scan(&a.DID, &a.PublicKey, &status, &caps, &meta, &a.RegisteredAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("postgres: agent scan failed: %w", err)
		}
		a.Status = domain.AgentStatus(status)
		a.RevokedAt = revokedAt
		_ = json.Unmarshal(caps, &a.Capabilities)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &a.Metadata)
		}
		results = append(results, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
