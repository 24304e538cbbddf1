package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/aeon-gateway/internal/audit"
)

const auditNumFields = 13 // Количество колонок в таблице audit_entries

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append — синхронный write-ahead путь: одна запись, одна вставка,
// подтверждение от БД до выпуска вердикта.
func (r *AuditRepo) Append(ctx context.Context, e audit.Entry) error {
	payload, _ := json.Marshal(e.Payload)

	query := `INSERT INTO audit_entries
		(id, trace_id, intent_id, agent_did, tool, stage, outcome, policy_version, reasoning, payload, duration_ms, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TraceID, e.IntentID, e.AgentDID, e.Tool, string(e.Stage),
		e.Outcome, e.PolicyVersion, e.Reasoning, payload, e.DurationMs, e.Error, e.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: audit append failed: %w", err)
	}
	return nil
}

// WriteBatch сохраняет пачку событий жизненного цикла за один запрос.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Entry) error {
	if len(events) == 0 {
		return nil
	}

	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*auditNumFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * auditNumFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13)

		payload, _ := json.Marshal(e.Payload)

		vals = append(vals,
			e.ID, e.TraceID, e.IntentID, e.AgentDID, e.Tool, string(e.Stage),
			e.Outcome, e.PolicyVersion, e.Reasoning, payload, e.DurationMs, e.Error, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_entries (id, trace_id, intent_id, agent_did, tool, stage, outcome, policy_version, reasoning, payload, duration_ms, error, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// AuditFilter — параметры выборки трейла для консоли
type AuditFilter struct {
	IntentID string
	AgentDID string
	Stage    string
	Limit    int
}

// Find отдает записи трейла для Console API, свежие сверху.
func (r *AuditRepo) Find(ctx context.Context, f AuditFilter) ([]audit.Entry, error) {
	query := `SELECT id, trace_id, intent_id, agent_did, tool, stage, outcome, policy_version, reasoning, payload, duration_ms, error, timestamp
	          FROM audit_entries`

	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.IntentID != "" {
		add("intent_id = $%d", f.IntentID)
	}
	if f.AgentDID != "" {
		add("agent_did = $%d", f.AgentDID)
	}
	if f.Stage != "" {
		add("stage = $%d", f.Stage)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit query failed: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var stage string
		var payload []byte
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.IntentID, &e.AgentDID, &e.Tool, &stage,
			&e.Outcome, &e.PolicyVersion, &e.Reasoning, &payload, &e.DurationMs, &e.Error, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: audit scan failed: %w", err)
		}
		e.Stage = audit.Stage(stage)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
