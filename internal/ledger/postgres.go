package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sent_notifications (
    event_uid         TEXT        NOT NULL,
    target_date       DATE        NOT NULL,
    notification_type TEXT        NOT NULL,
    sent_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (event_uid, target_date, notification_type)
)`

// PostgresStore keeps the ledger in the sent_notifications table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgresStore connects to dsn and creates the table if needed.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: create table: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Exists(ctx context.Context, k Key) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM sent_notifications
            WHERE event_uid = $1 AND target_date = $2::date AND notification_type = $3
        )
    `
	var ok bool
	if err := s.db.QueryRow(ctx, query, k.EventUID, k.TargetDate, k.Type).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, k Key) (bool, error) {
	query := `
        INSERT INTO sent_notifications (event_uid, target_date, notification_type)
        VALUES ($1, $2::date, $3)
        ON CONFLICT DO NOTHING
    `
	tag, err := s.db.Exec(ctx, query, k.EventUID, k.TargetDate, k.Type)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
