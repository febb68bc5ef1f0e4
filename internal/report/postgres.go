package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/bankex/internal/ledger"
)

const createBalancesTable = `
CREATE TABLE IF NOT EXISTS account_balances (
    client_id  INTEGER PRIMARY KEY,
    available  NUMERIC NOT NULL,
    held       NUMERIC NOT NULL,
    total      NUMERIC NOT NULL,
    locked     BOOLEAN NOT NULL,
    run_id     UUID NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

const upsertBalance = `
INSERT INTO account_balances (client_id, available, held, total, locked, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (client_id) DO UPDATE SET
    available = EXCLUDED.available,
    held = EXCLUDED.held,
    total = EXCLUDED.total,
    locked = EXCLUDED.locked,
    run_id = EXCLUDED.run_id,
    updated_at = EXCLUDED.updated_at`

// OpenPostgres configures a connection pool and verifies connectivity.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresSink upserts the snapshot into account_balances in one transaction.
type PostgresSink struct {
	db    txBeginner
	runID uuid.UUID
	now   func() time.Time
}

// NewPostgresSink builds a sink tagging every row with runID.
func NewPostgresSink(db txBeginner, runID uuid.UUID) *PostgresSink {
	return &PostgresSink{db: db, runID: runID, now: time.Now}
}

func (s *PostgresSink) Write(ctx context.Context, accounts []ledger.Account) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin report transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, createBalancesTable); err != nil {
		return fmt.Errorf("create account_balances: %w", err)
	}

	updatedAt := s.now().UTC()
	for _, row := range Rows(accounts) {
		if _, err := tx.Exec(ctx, upsertBalance,
			int32(row.Client),
			Amount(row.Available),
			Amount(row.Held),
			Amount(row.Total),
			row.Locked,
			s.runID,
			updatedAt,
		); err != nil {
			return fmt.Errorf("upsert client %d: %w", row.Client, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}
