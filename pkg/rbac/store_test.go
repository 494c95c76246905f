package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePermissions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	created, err := store.CreatePermission(ctx, ActionView, ResourceStudies)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := store.GetPermission(ctx, ActionView, ResourceStudies)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, ActionView, got.Action)
	assert.Equal(t, ResourceStudies, got.Resource)

	// The pair is unique.
	_, err = store.CreatePermission(ctx, ActionView, ResourceStudies)
	assert.Error(t, err)

	// Empty fields are rejected before touching the database.
	_, err = store.CreatePermission(ctx, "", ResourceStudies)
	assert.Error(t, err)

	_, err = store.GetPermission(ctx, ActionDelete, ResourceStudies)
	assert.Error(t, err)
}

func TestStoreMembershipEdges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	p, err := store.CreatePermission(ctx, ActionView, ResourceStudies)
	require.NoError(t, err)
	group, err := store.CreateAccessGroup(ctx, "readers", "app-1")
	require.NoError(t, err)
	require.NoError(t, store.GrantToGroup(ctx, group.ID, p.ID))
	require.NoError(t, store.AddMember(ctx, "acct-1", group.ID))

	perms, err := store.GroupPermissionsFor(ctx, "acct-1", "app-1")
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	// Removing the membership edge removes the contribution; the group and
	// its permission edge survive untouched.
	require.NoError(t, store.RemoveMember(ctx, "acct-1", group.ID))
	perms, err = store.GroupPermissionsFor(ctx, "acct-1", "app-1")
	require.NoError(t, err)
	assert.Empty(t, perms)

	require.NoError(t, store.AddMember(ctx, "acct-1", group.ID))
	require.NoError(t, store.RevokeFromGroup(ctx, group.ID, p.ID))
	perms, err = store.GroupPermissionsFor(ctx, "acct-1", "app-1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestStoreRoleAssignmentEdges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	p, err := store.CreatePermission(ctx, ActionEdit, ResourceParticipants)
	require.NoError(t, err)
	role, err := store.CreateRole(ctx, "coordinator")
	require.NoError(t, err)
	require.NoError(t, store.GrantToRole(ctx, role.ID, p.ID))
	_, err = store.CreateStudy(ctx, "study-1", "app-1", "one")
	require.NoError(t, err)
	require.NoError(t, store.AssignRole(ctx, "acct-1", role.ID, "study-1"))

	perms, err := store.RolePermissionsFor(ctx, "acct-1", "study-1")
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	require.NoError(t, store.UnassignRole(ctx, "acct-1", role.ID, "study-1"))
	perms, err = store.RolePermissionsFor(ctx, "acct-1", "study-1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestStoreStudyActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	_, err := store.CreateStudy(ctx, "study-1", "app-1", "one")
	require.NoError(t, err)

	active, err := store.StudyActive(ctx, "study-1")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, store.ArchiveStudy(ctx, "study-1"))
	active, err = store.StudyActive(ctx, "study-1")
	require.NoError(t, err)
	assert.False(t, active)

	// A missing study is inactive, not an error.
	active, err = store.StudyActive(ctx, "no-such-study")
	require.NoError(t, err)
	assert.False(t, active)
}
