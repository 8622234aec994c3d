package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"immigo/internal/impact"
	id "immigo/pkg/domain"
)

// PostgresPreferenceStore persists preferences in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE notification_preferences (
//	    user_id      TEXT        PRIMARY KEY,
//	    min_severity TEXT        NOT NULL,
//	    categories   JSONB       NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresPreferenceStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed preference store.
func NewPostgres(db *sql.DB) *PostgresPreferenceStore {
	return &PostgresPreferenceStore{db: db}
}

func (s *PostgresPreferenceStore) Get(ctx context.Context, userID id.UserID) (Preference, error) {
	const query = `
		SELECT min_severity, categories, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`
	var (
		pref       = Preference{UserID: userID}
		severity   string
		categories []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID.String()).Scan(&severity, &categories, &pref.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultPreference(userID), nil
		}
		return Preference{}, fmt.Errorf("get notification preference: %w", err)
	}
	pref.MinSeverity = impact.Severity(severity)
	if err := json.Unmarshal(categories, &pref.Categories); err != nil {
		return Preference{}, fmt.Errorf("decode preference categories: %w", err)
	}
	return pref, nil
}

func (s *PostgresPreferenceStore) Put(ctx context.Context, pref Preference) error {
	if pref.UserID.IsNil() {
		return fmt.Errorf("put preference: user id is required")
	}
	if !pref.MinSeverity.IsValid() {
		return fmt.Errorf("put preference: unknown severity %q", pref.MinSeverity)
	}
	categories, err := json.Marshal(pref.Categories)
	if err != nil {
		return fmt.Errorf("encode preference categories: %w", err)
	}
	const query = `
		INSERT INTO notification_preferences (user_id, min_severity, categories, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			min_severity = EXCLUDED.min_severity,
			categories = EXCLUDED.categories,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		pref.UserID.String(), pref.MinSeverity.String(), categories, pref.UpdatedAt,
	); err != nil {
		return fmt.Errorf("put notification preference: %w", err)
	}
	return nil
}
