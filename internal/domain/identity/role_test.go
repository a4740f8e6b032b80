package identity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/pkg/keygen"
)

func TestNewRole(t *testing.T) {
	t.Run("should create role with generated id and version 1", func(t *testing.T) {
		role, err := NewRole("admin", testGenerator())

		require.NoError(t, err)
		assert.NotEmpty(t, role.ID)
		assert.Equal(t, "admin", role.Name)
		assert.Equal(t, 1, role.Version)
		assert.NotNil(t, role.Claims)
	})

	t.Run("should leave id empty with external strategy", func(t *testing.T) {
		gen := keygen.NewGenerator(keygen.External, rand.New(rand.NewSource(1)))

		role, err := NewRole("admin", gen)

		require.NoError(t, err)
		assert.Empty(t, role.ID)

		role.SetID("caller-assigned")
		assert.Equal(t, "caller-assigned", role.ID)
	})

	t.Run("should reject empty name", func(t *testing.T) {
		_, err := NewRole("", testGenerator())

		require.Error(t, err)
		assert.True(t, shared.IsInvalidArgument(err))
	})
}

func TestRole_Claims(t *testing.T) {
	t.Run("should carry claims through the embedded holder", func(t *testing.T) {
		role, err := NewRole("admin", testGenerator())
		require.NoError(t, err)

		added, err := role.AddClaim(&Claim{Type: "scope", Value: "users:write"})
		require.NoError(t, err)
		assert.True(t, added)
		assert.True(t, role.HasClaim(Claim{Type: "scope", Value: "users:write"}))
	})
}
