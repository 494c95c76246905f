package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists the grant graph. All queries read the live rows; archival is
// filtered at query time so archived entities keep their history.
type Store struct {
	db *sql.DB
}

// NewStore creates a grant graph store over the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePermission inserts a new (action, resource) pair. The pair is unique;
// there is deliberately no update operation because permissions are immutable
// after creation. A changed pair is a new permission.
func (s *Store) CreatePermission(ctx context.Context, action Action, resource Resource) (*Permission, error) {
	if action == "" || resource == "" {
		return nil, fmt.Errorf("action and resource are required")
	}

	p := &Permission{Action: action, Resource: resource, CreatedAt: time.Now()}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO permissions (action, resource, created_at) VALUES ($1, $2, $3) RETURNING id`,
		string(action), string(resource), p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission %s: %w", p, err)
	}
	return p, nil
}

// GetPermission looks up a permission by its pair.
func (s *Store) GetPermission(ctx context.Context, action Action, resource Resource) (*Permission, error) {
	var p Permission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, action, resource, created_at FROM permissions WHERE action = $1 AND resource = $2`,
		string(action), string(resource),
	).Scan(&p.ID, &p.Action, &p.Resource, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission not found: %s:%s", action, resource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

// CreateAccessGroup creates a group scoped to one application.
func (s *Store) CreateAccessGroup(ctx context.Context, name, applicationID string) (*AccessGroup, error) {
	now := time.Now()
	g := &AccessGroup{Name: name, ApplicationID: applicationID, CreatedAt: now, UpdatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO access_groups (name, application_id, archived, created_at, updated_at)
		 VALUES ($1, $2, FALSE, $3, $4) RETURNING id`,
		name, applicationID, now, now,
	).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create access group %q: %w", name, err)
	}
	return g, nil
}

// ArchiveAccessGroup marks a group archived. Its memberships and permission
// edges survive but stop contributing to resolution.
func (s *Store) ArchiveAccessGroup(ctx context.Context, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE access_groups SET archived = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to archive access group %d: %w", groupID, err)
	}
	return nil
}

// AddMember joins an account to an access group.
func (s *Store) AddMember(ctx context.Context, accountID string, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_group_members (account_id, access_group_id, created_at) VALUES ($1, $2, $3)`,
		accountID, groupID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to add member %s to group %d: %w", accountID, groupID, err)
	}
	return nil
}

// RemoveMember deletes one membership edge. The account, the group and the
// group's permissions are untouched; the edge belongs to the relationship.
func (s *Store) RemoveMember(ctx context.Context, accountID string, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM access_group_members WHERE account_id = $1 AND access_group_id = $2`,
		accountID, groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member %s from group %d: %w", accountID, groupID, err)
	}
	return nil
}

// GrantToGroup attaches a permission to an access group.
func (s *Store) GrantToGroup(ctx context.Context, groupID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_group_permissions (access_group_id, permission_id, created_at) VALUES ($1, $2, $3)`,
		groupID, permissionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to grant permission %d to group %d: %w", permissionID, groupID, err)
	}
	return nil
}

// RevokeFromGroup removes a permission edge from a group.
func (s *Store) RevokeFromGroup(ctx context.Context, groupID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM access_group_permissions WHERE access_group_id = $1 AND permission_id = $2`,
		groupID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke permission %d from group %d: %w", permissionID, groupID, err)
	}
	return nil
}

// CreateRole creates an application-independent role.
func (s *Store) CreateRole(ctx context.Context, name string) (*Role, error) {
	now := time.Now()
	r := &Role{Name: name, CreatedAt: now, UpdatedAt: now}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, archived, created_at, updated_at) VALUES ($1, FALSE, $2, $3) RETURNING id`,
		name, now, now,
	).Scan(&r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create role %q: %w", name, err)
	}
	return r, nil
}

// ArchiveRole marks a role archived; its assignments stop resolving.
func (s *Store) ArchiveRole(ctx context.Context, roleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE roles SET archived = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to archive role %d: %w", roleID, err)
	}
	return nil
}

// GrantToRole attaches a permission to a role.
func (s *Store) GrantToRole(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, $3)`,
		roleID, permissionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to grant permission %d to role %d: %w", permissionID, roleID, err)
	}
	return nil
}

// AssignRole attaches a role to an account for exactly one study.
func (s *Store) AssignRole(ctx context.Context, accountID string, roleID int64, studyID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_role_assignments (account_id, role_id, study_id, created_at) VALUES ($1, $2, $3, $4)`,
		accountID, roleID, studyID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to assign role %d to %s for study %s: %w", roleID, accountID, studyID, err)
	}
	return nil
}

// UnassignRole removes one assignment edge.
func (s *Store) UnassignRole(ctx context.Context, accountID string, roleID int64, studyID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM study_role_assignments WHERE account_id = $1 AND role_id = $2 AND study_id = $3`,
		accountID, roleID, studyID,
	)
	if err != nil {
		return fmt.Errorf("failed to unassign role %d from %s for study %s: %w", roleID, accountID, studyID, err)
	}
	return nil
}

// CreateStudy records a study under an application.
func (s *Store) CreateStudy(ctx context.Context, id, applicationID, name string) (*Study, error) {
	now := time.Now()
	st := &Study{ID: id, ApplicationID: applicationID, Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO studies (id, application_id, name, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, FALSE, $4, $5)`,
		id, applicationID, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create study %q: %w", name, err)
	}
	return st, nil
}

// ArchiveStudy marks a study archived. Resolution for that study id then
// behaves exactly as if no study scope had been supplied.
func (s *Store) ArchiveStudy(ctx context.Context, studyID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE studies SET archived = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), studyID,
	)
	if err != nil {
		return fmt.Errorf("failed to archive study %s: %w", studyID, err)
	}
	return nil
}

// StudyActive reports whether the study exists and is not archived. A missing
// study is treated the same as an archived one: the role path contributes
// nothing, without erroring.
func (s *Store) StudyActive(ctx context.Context, studyID string) (bool, error) {
	var archived bool
	err := s.db.QueryRowContext(ctx,
		`SELECT archived FROM studies WHERE id = $1`, studyID,
	).Scan(&archived)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up study %s: %w", studyID, err)
	}
	return !archived, nil
}

// GroupPermissionsFor returns the permissions the account reaches through
// non-archived access groups scoped to the application.
func (s *Store) GroupPermissionsFor(ctx context.Context, accountID, applicationID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.action, p.resource, p.created_at
		FROM permissions p
		JOIN access_group_permissions agp ON agp.permission_id = p.id
		JOIN access_groups ag ON ag.id = agp.access_group_id
		JOIN access_group_members agm ON agm.access_group_id = ag.id
		WHERE agm.account_id = $1
		  AND ag.application_id = $2
		  AND ag.archived = FALSE
	`, accountID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// RolePermissionsFor returns the permissions the account reaches through
// non-archived roles assigned for exactly the given study.
func (s *Store) RolePermissionsFor(ctx context.Context, accountID, studyID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.action, p.resource, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN study_role_assignments sra ON sra.role_id = r.id
		WHERE sra.account_id = $1
		  AND sra.study_id = $2
		  AND r.archived = FALSE
	`, accountID, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Resource, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
