package detect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"immigo/internal/policy"
)

// PostgresLedger persists processed transitions in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE processed_transitions (
//	    country      TEXT        NOT NULL,
//	    policy_type  TEXT        NOT NULL,
//	    from_version BIGINT      NOT NULL,
//	    to_version   BIGINT      NOT NULL,
//	    processed_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (country, policy_type, from_version, to_version)
//	);
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger constructs a PostgreSQL-backed ledger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Seen(ctx context.Context, key policy.Key, fromVersion, toVersion int64) (bool, error) {
	const query = `
		SELECT 1
		FROM processed_transitions
		WHERE country = $1 AND policy_type = $2 AND from_version = $3 AND to_version = $4
	`
	var one int
	err := l.db.QueryRowContext(ctx, query,
		key.Country.String(), key.Type.String(), fromVersion, toVersion,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed transition: %w", err)
	}
	return true, nil
}

func (l *PostgresLedger) Mark(ctx context.Context, t Transition) error {
	if t.Key.IsNil() {
		return fmt.Errorf("mark transition: policy key is required")
	}
	const query = `
		INSERT INTO processed_transitions (country, policy_type, from_version, to_version, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (country, policy_type, from_version, to_version) DO NOTHING
	`
	if _, err := l.db.ExecContext(ctx, query,
		t.Key.Country.String(), t.Key.Type.String(), t.FromVersion, t.ToVersion, t.ProcessedAt,
	); err != nil {
		return fmt.Errorf("mark processed transition: %w", err)
	}
	return nil
}
