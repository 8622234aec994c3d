package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// PostgresStore persists snapshot history in PostgreSQL.
// This store is pure I/O except for the identical-fields check, which it owns
// because the check must happen under the same lock that assigns the next
// version.
//
// Schema:
//
//	CREATE TABLE policy_snapshots (
//	    country      TEXT        NOT NULL,
//	    policy_type  TEXT        NOT NULL,
//	    version      BIGINT      NOT NULL,
//	    captured_at  TIMESTAMPTZ NOT NULL,
//	    fields       JSONB       NOT NULL,
//	    PRIMARY KEY (country, policy_type, version)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed snapshot store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, key policy.Key, fields policy.Fields) (policy.Snapshot, bool, error) {
	if key.IsNil() {
		return policy.Snapshot{}, false, fmt.Errorf("append snapshot: key is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policy.Snapshot{}, false, fmt.Errorf("begin append snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Lock the latest row per key so concurrent appends serialize and the
	// version sequence stays gapless per key.
	const latestQuery = `
		SELECT version, captured_at, fields
		FROM policy_snapshots
		WHERE country = $1 AND policy_type = $2
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE
	`
	var (
		latest     policy.Snapshot
		rawFields  []byte
		haveLatest bool
	)
	row := tx.QueryRowContext(ctx, latestQuery, key.Country.String(), key.Type.String())
	switch err := row.Scan(&latest.Version, &latest.CapturedAt, &rawFields); {
	case err == nil:
		haveLatest = true
		if err := json.Unmarshal(rawFields, &latest.Fields); err != nil {
			return policy.Snapshot{}, false, fmt.Errorf("decode latest snapshot fields: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// first version for this key
	default:
		return policy.Snapshot{}, false, fmt.Errorf("load latest snapshot: %w", err)
	}

	if haveLatest && latest.Fields.Equal(fields) {
		latest.Key = key
		return latest, false, nil
	}

	snap := policy.Snapshot{
		Key:        key,
		Version:    latest.Version + 1,
		CapturedAt: requestcontext.Now(ctx),
		Fields:     fields.Clone(),
	}
	encoded, err := json.Marshal(snap.Fields)
	if err != nil {
		return policy.Snapshot{}, false, fmt.Errorf("encode snapshot fields: %w", err)
	}
	const insert = `
		INSERT INTO policy_snapshots (country, policy_type, version, captured_at, fields)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insert,
		key.Country.String(), key.Type.String(), snap.Version, snap.CapturedAt, encoded,
	); err != nil {
		return policy.Snapshot{}, false, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return policy.Snapshot{}, false, fmt.Errorf("commit append snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *PostgresStore) Latest(ctx context.Context, key policy.Key) (policy.Snapshot, error) {
	const query = `
		SELECT version, captured_at, fields
		FROM policy_snapshots
		WHERE country = $1 AND policy_type = $2
		ORDER BY version DESC
		LIMIT 1
	`
	return s.scanSnapshot(s.db.QueryRowContext(ctx, query, key.Country.String(), key.Type.String()), key)
}

func (s *PostgresStore) At(ctx context.Context, key policy.Key, version int64) (policy.Snapshot, error) {
	const query = `
		SELECT version, captured_at, fields
		FROM policy_snapshots
		WHERE country = $1 AND policy_type = $2 AND version = $3
	`
	return s.scanSnapshot(s.db.QueryRowContext(ctx, query, key.Country.String(), key.Type.String(), version), key)
}

func (s *PostgresStore) Keys(ctx context.Context) ([]policy.Key, error) {
	const query = `
		SELECT DISTINCT country, policy_type
		FROM policy_snapshots
		ORDER BY country, policy_type
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", err)
	}
	defer rows.Close()

	var keys []policy.Key
	for rows.Next() {
		var country, policyType string
		if err := rows.Scan(&country, &policyType); err != nil {
			return nil, fmt.Errorf("scan snapshot key: %w", err)
		}
		keys = append(keys, policy.Key{
			Country: id.CountryID(country),
			Type:    id.PolicyType(policyType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) scanSnapshot(row *sql.Row, key policy.Key) (policy.Snapshot, error) {
	var (
		snap      policy.Snapshot
		rawFields []byte
	)
	if err := row.Scan(&snap.Version, &snap.CapturedAt, &rawFields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Snapshot{}, fmt.Errorf("snapshot %s: %w", key, sentinel.ErrNotFound)
		}
		return policy.Snapshot{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(rawFields, &snap.Fields); err != nil {
		return policy.Snapshot{}, fmt.Errorf("decode snapshot fields: %w", err)
	}
	snap.Key = key
	return snap, nil
}
