package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xela07ax/chat-control-plane/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type CommandRepo struct {
	db *sql.DB
}

func NewCommandRepo(connString string) *CommandRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &CommandRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *CommandRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WriteBatch пишет пачку записей аудита одним INSERT.
func (r *CommandRepo) WriteBatch(ctx context.Context, records []domain.AdminCommand) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице admin_commands
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, c := range records {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		payload, _ := json.Marshal(c.Payload)
		succeeded, _ := json.Marshal(c.Succeeded)
		failed, _ := json.Marshal(c.Failed)

		vals = append(vals,
			c.ID, c.Seq, string(c.Type), payload, c.AdminID,
			c.Timestamp, c.DurationMs, c.Status, c.Error, succeeded, failed,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO admin_commands (id, seq, type, payload, admin_id, timestamp, duration_ms, status, error, succeeded, failed) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchCommands возвращает архивные записи с фильтрацией по админу и типу.
// Пустые фильтры означают "все".
func (r *CommandRepo) FetchCommands(ctx context.Context, adminID, cmdType string, limit int) ([]domain.AdminCommand, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, seq, type, payload, admin_id, timestamp, duration_ms, status, error, succeeded, failed
		FROM admin_commands
		WHERE ($1 = '' OR admin_id = $1)
		  AND ($2 = '' OR type = $2)
		ORDER BY seq DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, adminID, cmdType, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch commands: %w", err)
	}
	defer rows.Close()

	var out []domain.AdminCommand
	for rows.Next() {
		var (
			c                          domain.AdminCommand
			typ                        string
			payload, succeeded, failed []byte
		)
		if err := rows.Scan(&c.ID, &c.Seq, &typ, &payload, &c.AdminID,
			&c.Timestamp, &c.DurationMs, &c.Status, &c.Error, &succeeded, &failed); err != nil {
			return nil, err
		}
		c.Type = domain.CommandType(typ)
		_ = json.Unmarshal(payload, &c.Payload)
		_ = json.Unmarshal(succeeded, &c.Succeeded)
		_ = json.Unmarshal(failed, &c.Failed)
		out = append(out, c)
	}
	return out, rows.Err()
}
