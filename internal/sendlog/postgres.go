package sendlog

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	selectDelivered = `SELECT email FROM send_log WHERE campaign_id = $1`
	insertEntry     = `INSERT INTO send_log (campaign_id, email, provider, message_id, sent_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (campaign_id, email) DO NOTHING`
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresStore is a Store backed by the send_log table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPool opens a small connection pool sized for a Lambda container.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the send_log table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create send_log schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delivered(ctx context.Context, campaignID string) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, selectDelivered, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query send_log: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan send_log row: %w", err)
		}
		out[NormalizeEmail(email)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate send_log: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, insertEntry, e.CampaignID, NormalizeEmail(e.Email), e.Provider, e.MessageID, sentAt)
	if err != nil {
		return fmt.Errorf("insert send_log: %w", err)
	}
	return nil
}
