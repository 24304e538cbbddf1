package postgres

/*
Файл policy_repo.go отвечает за хранение версионированных снапшотов конституции.
Долговременное хранение в PostgreSQL отделено от мгновенной проверки:
шлюз работает по снапшоту в RAM, БД хранит историю версий целиком.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// LoadActive возвращает последний опубликованный снапшот (policy.SnapshotSource).
func (r *Repo) LoadActive(ctx context.Context) (*domain.Snapshot, error) {
	query := `SELECT version, content, content_hash, published_at
	          FROM policy_snapshots ORDER BY version DESC LIMIT 1`

	var version int64
	var content []byte
	var hash string
	var publishedAt time.Time

	err := r.pool.QueryRow(ctx, query).Scan(&version, &content, &hash, &publishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no policy snapshot published yet")
		}
		return nil, fmt.Errorf("postgres: snapshot load failed: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return nil, fmt.Errorf("postgres: snapshot %d is corrupted: %w", version, err)
	}
	snap.Version = version
	snap.ContentHash = hash
	snap.PublishedAt = publishedAt
	return &snap, nil
}

// PublishSnapshot пишет новую версию конституции. Версия выдается базой
// атомарно, поэтому параллельные публикации не перетирают друг друга.
func (r *Repo) PublishSnapshot(ctx context.Context, snap *domain.Snapshot) (int64, error) {
	content, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("postgres: snapshot marshal failed: %w", err)
	}
	if snap.ContentHash == "" {
		snap.ContentHash = snap.ComputeHash()
	}

	var version int64
	query := `INSERT INTO policy_snapshots (version, content, content_hash, published_at)
	          VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM policy_snapshots), $1, $2, NOW())
	          RETURNING version`

	if err := r.pool.QueryRow(ctx, query, content, snap.ContentHash).Scan(&version); err != nil {
		return 0, fmt.Errorf("postgres: snapshot publish failed: %w", err)
	}
	return version, nil
}

// GetSnapshotByVersion достает историческую версию (для воспроизведения аудита).
func (r *Repo) GetSnapshotByVersion(ctx context.Context, version int64) (*domain.Snapshot, error) {
	query := `SELECT content, content_hash, published_at FROM policy_snapshots WHERE version = $1`

	var content []byte
	var hash string
	var publishedAt time.Time

	err := r.pool.QueryRow(ctx, query, version).Scan(&content, &hash, &publishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Возвращаем nil для 404 в хендлере
		}
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return nil, fmt.Errorf("postgres: snapshot %d is corrupted: %w", version, err)
	}
	snap.Version = version
	snap.ContentHash = hash
	snap.PublishedAt = publishedAt
	return &snap, nil
}
