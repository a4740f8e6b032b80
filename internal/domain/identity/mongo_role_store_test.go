package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
)

// createTestRole creates a role with a unique name derived from the test
func createTestRole(t *testing.T) *Role {
	role, err := NewRole(fmt.Sprintf("role-%s-%d", t.Name(), time.Now().UnixNano()), testGenerator())
	require.NoError(t, err)
	role.NormalizedName = "TEST-ROLE-" + role.ID
	return role
}

func TestMongoRoleStore_Create(t *testing.T) {
	client := setupTestMongo(t)
	defer client.Close(context.Background())

	store := NewMongoRoleStore(client)
	ctx := context.Background()

	t.Run("should insert and find a new role", func(t *testing.T) {
		role := createTestRole(t)

		err := store.Create(ctx, role)
		require.NoError(t, err)
		defer store.Delete(ctx, role)

		result, err := store.FindByID(ctx, role.ID)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, role.Name, result.Name)
		assert.Equal(t, 1, result.Version)
	})

	t.Run("should reject a duplicate role name", func(t *testing.T) {
		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))
		defer store.Delete(ctx, role)

		dup := createTestRole(t)
		dup.NormalizedName = role.NormalizedName

		err := store.Create(ctx, dup)
		require.Error(t, err)
		assert.True(t, shared.IsDuplicateKey(err))
	})
}

func TestMongoRoleStore_Update(t *testing.T) {
	client := setupTestMongo(t)
	defer client.Close(context.Background())

	store := NewMongoRoleStore(client)
	ctx := context.Background()

	t.Run("should bump the version on a successful update", func(t *testing.T) {
		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))
		defer store.Delete(ctx, role)

		role.Name = role.Name + "-renamed"
		err := store.Update(ctx, role)

		require.NoError(t, err)
		assert.Equal(t, 2, role.Version)
	})

	t.Run("should fail a stale update", func(t *testing.T) {
		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))
		defer store.Delete(ctx, role)

		stale, err := store.FindByID(ctx, role.ID)
		require.NoError(t, err)
		require.NotNil(t, stale)

		require.NoError(t, store.Update(ctx, role))

		err = store.Update(ctx, stale)
		require.Error(t, err)
		assert.True(t, shared.IsConcurrencyFailure(err))
	})

	t.Run("should persist role claims", func(t *testing.T) {
		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))
		defer store.Delete(ctx, role)

		err := store.AddClaim(ctx, role, &Claim{Type: "scope", Value: "users:write"})
		require.NoError(t, err)

		result, err := store.FindByID(ctx, role.ID)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.HasClaim(Claim{Type: "scope", Value: "users:write"}))

		err = store.RemoveClaim(ctx, result, &Claim{Type: "scope", Value: "users:write"})
		require.NoError(t, err)

		result, err = store.FindByID(ctx, role.ID)
		require.NoError(t, err)
		assert.False(t, result.HasClaim(Claim{Type: "scope", Value: "users:write"}))
	})
}

func TestMongoRoleStore_Delete(t *testing.T) {
	client := setupTestMongo(t)
	defer client.Close(context.Background())

	store := NewMongoRoleStore(client)
	ctx := context.Background()

	t.Run("should delete a role without touching memberships", func(t *testing.T) {
		userStore := NewMongoUserStore(client)

		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))

		user := createTestUser(t)
		require.NoError(t, userStore.Create(ctx, user))
		defer userStore.Delete(ctx, user)

		require.NoError(t, userStore.AddToRole(ctx, user, role.ID))

		require.NoError(t, store.Delete(ctx, role))

		// The user still carries the orphaned role id
		result, err := userStore.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.HasRole(role.ID))
	})

	t.Run("should fail a stale delete", func(t *testing.T) {
		role := createTestRole(t)
		require.NoError(t, store.Create(ctx, role))
		defer store.Delete(ctx, role)

		stale, err := store.FindByID(ctx, role.ID)
		require.NoError(t, err)
		require.NotNil(t, stale)

		require.NoError(t, store.Update(ctx, role))

		err = store.Delete(ctx, stale)
		require.Error(t, err)
		assert.True(t, shared.IsConcurrencyFailure(err))
	})
}

func TestMongoRoleStore_Dispose(t *testing.T) {
	client := setupTestMongo(t)
	defer client.Close(context.Background())

	store := NewMongoRoleStore(client)
	ctx := context.Background()

	t.Run("should refuse every operation after dispose", func(t *testing.T) {
		store.Dispose()

		err := store.Create(ctx, createTestRole(t))
		assert.True(t, shared.IsStoreDisposed(err))

		_, err = store.FindByName(ctx, "any")
		assert.True(t, shared.IsStoreDisposed(err))
	})
}
