package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements for the grant graph. Join rows are owned by the
// relationship: deleting an account or group cascades to its edges only,
// never to permissions or studies.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS permissions (
		id BIGSERIAL PRIMARY KEY,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE (action, resource)
	)`,
	`CREATE TABLE IF NOT EXISTS access_groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		application_id TEXT NOT NULL,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS access_group_members (
		account_id TEXT NOT NULL,
		access_group_id BIGINT NOT NULL REFERENCES access_groups(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (account_id, access_group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS access_group_permissions (
		access_group_id BIGINT NOT NULL REFERENCES access_groups(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id),
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (access_group_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id),
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS studies (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		name TEXT NOT NULL,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS study_role_assignments (
		account_id TEXT NOT NULL,
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		study_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (account_id, role_id, study_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agm_account ON access_group_members(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sra_account_study ON study_role_assignments(account_id, study_id)`,
}

// Migrate applies the grant graph schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rbac migration failed: %w", err)
		}
	}
	return nil
}
