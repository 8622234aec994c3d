package checklist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
)

// PostgresStore persists checklists in PostgreSQL. Items live in a JSONB
// column on the checklist row so a Save is one conditional UPDATE: the item
// changes and the counters commit together or not at all.
//
// Schema:
//
//	CREATE TABLE checklists (
//	    id              TEXT        PRIMARY KEY,
//	    user_id         TEXT        NOT NULL,
//	    origin          TEXT        NOT NULL,
//	    destination     TEXT        NOT NULL,
//	    title           TEXT        NOT NULL,
//	    items           JSONB       NOT NULL,
//	    completed_count INT         NOT NULL,
//	    total_count     INT         NOT NULL,
//	    version         BIGINT      NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed checklist store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cl Checklist) (Checklist, error) {
	if cl.ID.IsNil() {
		return Checklist{}, fmt.Errorf("create checklist: id is required")
	}
	if cl.UserID.IsNil() {
		return Checklist{}, fmt.Errorf("create checklist: user id is required")
	}
	cl = cl.Clone()
	cl.Version = 1
	cl.RecountProgress()

	items, err := json.Marshal(cl.Items)
	if err != nil {
		return Checklist{}, fmt.Errorf("encode checklist items: %w", err)
	}
	const query = `
		INSERT INTO checklists (id, user_id, origin, destination, title, items, completed_count, total_count, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		cl.ID.String(), cl.UserID.String(), cl.Origin.String(), cl.Destination.String(),
		cl.Title, items, cl.CompletedCount, cl.TotalCount, cl.Version, cl.UpdatedAt,
	)
	if err != nil {
		return Checklist{}, fmt.Errorf("insert checklist: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Checklist{}, fmt.Errorf("insert checklist rows affected: %w", err)
	}
	if rows == 0 {
		return Checklist{}, fmt.Errorf("create checklist %s: %w", cl.ID, sentinel.ErrConflict)
	}
	return cl, nil
}

func (s *PostgresStore) Get(ctx context.Context, clID id.ChecklistID) (Checklist, error) {
	const query = selectChecklist + ` WHERE id = $1`
	cl, err := scanChecklist(s.db.QueryRowContext(ctx, query, clID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checklist{}, fmt.Errorf("checklist %s: %w", clID, sentinel.ErrNotFound)
		}
		return Checklist{}, fmt.Errorf("get checklist: %w", err)
	}
	return cl, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]Checklist, error) {
	const query = selectChecklist + ` WHERE user_id = $1 ORDER BY id`
	return s.list(ctx, query, userID.String())
}

func (s *PostgresStore) ListByCountry(ctx context.Context, country id.CountryID) ([]Checklist, error) {
	const query = selectChecklist + ` WHERE origin = $1 OR destination = $1 ORDER BY id`
	return s.list(ctx, query, country.String())
}

// Save is the optimistic write: a conditional UPDATE keyed on the version the
// writer read. Zero rows affected means someone else won the race.
func (s *PostgresStore) Save(ctx context.Context, cl Checklist, expectedVersion int64) (Checklist, error) {
	items, err := json.Marshal(cl.Items)
	if err != nil {
		return Checklist{}, fmt.Errorf("encode checklist items: %w", err)
	}
	const query = `
		UPDATE checklists
		SET items = $2,
		    completed_count = $3,
		    total_count = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $1 AND version = $6
	`
	res, err := s.db.ExecContext(ctx, query,
		cl.ID.String(), items, cl.CompletedCount, cl.TotalCount, cl.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return Checklist{}, fmt.Errorf("save checklist: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Checklist{}, fmt.Errorf("save checklist rows affected: %w", err)
	}
	if rows == 0 {
		// Either the checklist vanished or the version moved; distinguish for
		// the caller since only conflicts are retryable.
		if _, getErr := s.Get(ctx, cl.ID); getErr != nil {
			return Checklist{}, getErr
		}
		return Checklist{}, fmt.Errorf("checklist %s version moved past %d: %w", cl.ID, expectedVersion, sentinel.ErrConflict)
	}
	cl.Version = expectedVersion + 1
	return cl, nil
}

const selectChecklist = `
	SELECT id, user_id, origin, destination, title, items, completed_count, total_count, version, updated_at
	FROM checklists
`

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]Checklist, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	defer rows.Close()

	var out []Checklist
	for rows.Next() {
		cl, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		out = append(out, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	return out, nil
}

type checklistRow interface {
	Scan(dest ...any) error
}

func scanChecklist(row checklistRow) (Checklist, error) {
	var (
		cl    Checklist
		items []byte
	)
	if err := row.Scan(
		&cl.ID, &cl.UserID, &cl.Origin, &cl.Destination, &cl.Title,
		&items, &cl.CompletedCount, &cl.TotalCount, &cl.Version, &cl.UpdatedAt,
	); err != nil {
		return Checklist{}, err
	}
	if err := json.Unmarshal(items, &cl.Items); err != nil {
		return Checklist{}, fmt.Errorf("decode checklist items: %w", err)
	}
	return cl, nil
}
