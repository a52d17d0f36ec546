package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRolesIsIdempotent(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Roles().EnsureRoles(ctx, identity.AllRoles()...))
	require.NoError(t, repo.Roles().EnsureRoles(ctx, identity.AllRoles()...))

	for _, name := range identity.AllRoles() {
		role, err := repo.Roles().GetByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, name.String(), role.Name)
	}
}

func TestEnsureRolesRejectsUnknownNames(t *testing.T) {
	repo, _ := setupTestDB(t)

	err := repo.Roles().EnsureRoles(context.Background(), identity.RoleName("superuser"))
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeRoleNotFound))
}

func TestAssignIsAdditive(t *testing.T) {
	repo, _ := setupTestDB(t)
	seedRoles(t, repo)
	ctx := context.Background()

	user, err := repo.Users().Register(ctx, newUser("pat@example.com"))
	require.NoError(t, err)

	require.NoError(t, repo.Roles().Assign(ctx, user.ID, identity.RoleUser))
	require.NoError(t, repo.Roles().Assign(ctx, user.ID, identity.RoleManager))

	// existing memberships survive, repeats are no-ops
	require.NoError(t, repo.Roles().Assign(ctx, user.ID, identity.RoleManager))

	roles, err := repo.Roles().ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleName{identity.RoleManager, identity.RoleUser}, roles)
}

func TestAssignUnknownUser(t *testing.T) {
	repo, _ := setupTestDB(t)
	seedRoles(t, repo)

	err := repo.Roles().Assign(context.Background(), uuid.New(), identity.RoleUser)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeUserNotFound))
}

func TestAssignUnknownRole(t *testing.T) {
	repo, _ := setupTestDB(t)
	seedRoles(t, repo)
	ctx := context.Background()

	user, err := repo.Users().Register(ctx, newUser("pat@example.com"))
	require.NoError(t, err)

	err = repo.Roles().Assign(ctx, user.ID, identity.RoleName("superuser"))
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeRoleNotFound))
}

func TestRevokeRole(t *testing.T) {
	repo, _ := setupTestDB(t)
	seedRoles(t, repo)
	ctx := context.Background()

	user, err := repo.Users().Register(ctx, newUser("pat@example.com"))
	require.NoError(t, err)

	require.NoError(t, repo.Roles().Assign(ctx, user.ID, identity.RoleUser))
	require.NoError(t, repo.Roles().Revoke(ctx, user.ID, identity.RoleUser))

	// revoking a role the user does not hold is a no-op
	require.NoError(t, repo.Roles().Revoke(ctx, user.ID, identity.RoleUser))

	roles, err := repo.Roles().ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRolesLoadedWithUser(t *testing.T) {
	repo, _ := setupTestDB(t)
	seedRoles(t, repo)
	ctx := context.Background()

	user, err := repo.Users().Register(ctx, newUser("pat@example.com"))
	require.NoError(t, err)
	require.NoError(t, repo.Roles().Assign(ctx, user.ID, identity.RoleAdmin))

	found, err := repo.Users().GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleName{identity.RoleAdmin}, found.RoleNames())
}
