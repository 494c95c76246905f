package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no principal matches the lookup.
var ErrNotFound = errors.New("principal not found")

// Store persists principals.
type Store struct {
	db *sql.DB
}

// NewStore creates a principal store over the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByExternalID looks up a principal of the given kind by its
// identity-provider subject id. Archived principals are returned as-is so the
// caller can apply the archived-principal gate with a distinct error.
func (s *Store) FindByExternalID(ctx context.Context, kind Kind, externalID string) (*Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, external_id, username, email, confirmed, archived, created_at, updated_at
		FROM principals
		WHERE kind = $1 AND external_id = $2
	`, string(kind), externalID).Scan(
		&p.ID, &p.Kind, &p.ExternalID, &p.Username, &p.Email,
		&p.Confirmed, &p.Archived, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	return &p, nil
}

// Get looks up a principal by id.
func (s *Store) Get(ctx context.Context, id string) (*Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, external_id, username, email, confirmed, archived, created_at, updated_at
		FROM principals
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Kind, &p.ExternalID, &p.Username, &p.Email,
		&p.Confirmed, &p.Archived, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return &p, nil
}

// Create inserts a new principal, assigning an id when none is set.
func (s *Store) Create(ctx context.Context, p *Principal) error {
	if !p.Kind.Valid() {
		return fmt.Errorf("invalid principal kind: %q", p.Kind)
	}
	if p.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, kind, external_id, username, email, confirmed, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
	`, p.ID, string(p.Kind), p.ExternalID, p.Username, p.Email, p.Confirmed, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

// Archive marks a principal archived. Rows are never hard-deleted so the
// grant graph and audit trail keep their references.
func (s *Store) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET archived = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to archive principal %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm marks a principal's identity confirmed.
func (s *Store) Confirm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principals SET confirmed = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm principal %s: %w", id, err)
	}
	return nil
}

// Migrate applies the principal schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS principals (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			external_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (kind, external_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("principal migration failed: %w", err)
	}
	return nil
}
