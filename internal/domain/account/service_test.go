package account

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/internal/events"
	"github.com/danghamo/mongoidentity/pkg/config"
	"github.com/danghamo/mongoidentity/pkg/keygen"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

// fakeUserStore is an in-memory UserStore with the same version discipline
// as the Mongo-backed store
type fakeUserStore struct {
	users map[string]identity.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]identity.User)}
}

func (s *fakeUserStore) Create(_ context.Context, user *identity.User) error {
	for _, u := range s.users {
		if u.NormalizedUserName == user.NormalizedUserName {
			return shared.ErrDuplicateKey("userName " + user.UserName)
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) Update(_ context.Context, user *identity.User) error {
	stored, ok := s.users[user.ID]
	if !ok || stored.Version != user.Version {
		return shared.ErrConcurrencyFailure(user.ID)
	}
	user.Version++
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, user *identity.User) error {
	stored, ok := s.users[user.ID]
	if !ok || stored.Version != user.Version {
		return shared.ErrConcurrencyFailure(user.ID)
	}
	delete(s.users, user.ID)
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*identity.User, error) {
	if u, ok := s.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeUserStore) FindByName(_ context.Context, normalizedName string) (*identity.User, error) {
	for _, u := range s.users {
		if u.NormalizedUserName == normalizedName {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, normalizedEmail string) (*identity.User, error) {
	for _, u := range s.users {
		if u.NormalizedEmail == normalizedEmail {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) FindByLogin(_ context.Context, provider, providerKey string) (*identity.User, error) {
	for _, u := range s.users {
		if u.HasLogin(identity.UserLogin{Provider: provider, ProviderKey: providerKey}) {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) AddClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	for i := range claims {
		if _, err := user.AddClaim(&claims[i]); err != nil {
			return err
		}
	}
	return s.Update(ctx, user)
}

func (s *fakeUserStore) ReplaceClaim(ctx context.Context, user *identity.User, oldClaim, newClaim *identity.Claim) error {
	if _, err := user.ClaimHolder.ReplaceClaim(oldClaim, newClaim); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

func (s *fakeUserStore) RemoveClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	user.ClaimHolder.RemoveClaims(claims)
	return s.Update(ctx, user)
}

func (s *fakeUserStore) AddLogin(ctx context.Context, user *identity.User, login *identity.UserLogin) error {
	if _, err := user.AddLogin(login); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

func (s *fakeUserStore) RemoveLogin(ctx context.Context, user *identity.User, provider, providerKey string) error {
	if _, err := user.RemoveLogin(&identity.UserLogin{Provider: provider, ProviderKey: providerKey}); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

func (s *fakeUserStore) AddToRole(ctx context.Context, user *identity.User, roleID string) error {
	user.AddRole(roleID)
	return s.Update(ctx, user)
}

func (s *fakeUserStore) RemoveFromRole(ctx context.Context, user *identity.User, roleID string) error {
	user.RemoveRole(roleID)
	return s.Update(ctx, user)
}

func (s *fakeUserStore) SetToken(ctx context.Context, user *identity.User, token *identity.UserToken) error {
	if _, err := user.SetToken(token); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

func (s *fakeUserStore) RemoveToken(ctx context.Context, user *identity.User, provider, name string) error {
	user.RemoveToken(provider, name)
	return s.Update(ctx, user)
}

func (s *fakeUserStore) Dispose() {}

// fakeRoleStore is an in-memory RoleStore
type fakeRoleStore struct {
	roles map[string]identity.Role
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{roles: make(map[string]identity.Role)}
}

func (s *fakeRoleStore) Create(_ context.Context, role *identity.Role) error {
	for _, r := range s.roles {
		if r.NormalizedName == role.NormalizedName {
			return shared.ErrDuplicateKey("role name " + role.Name)
		}
	}
	s.roles[role.ID] = *role
	return nil
}

func (s *fakeRoleStore) Update(_ context.Context, role *identity.Role) error {
	stored, ok := s.roles[role.ID]
	if !ok || stored.Version != role.Version {
		return shared.ErrConcurrencyFailure(role.ID)
	}
	role.Version++
	s.roles[role.ID] = *role
	return nil
}

func (s *fakeRoleStore) Delete(_ context.Context, role *identity.Role) error {
	delete(s.roles, role.ID)
	return nil
}

func (s *fakeRoleStore) FindByID(_ context.Context, id string) (*identity.Role, error) {
	if r, ok := s.roles[id]; ok {
		copied := r
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeRoleStore) FindByName(_ context.Context, normalizedName string) (*identity.Role, error) {
	for _, r := range s.roles {
		if r.NormalizedName == normalizedName {
			copied := r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeRoleStore) AddClaim(ctx context.Context, role *identity.Role, claim *identity.Claim) error {
	if _, err := role.ClaimHolder.AddClaim(claim); err != nil {
		return err
	}
	return s.Update(ctx, role)
}

func (s *fakeRoleStore) RemoveClaim(ctx context.Context, role *identity.Role, claim *identity.Claim) error {
	if _, err := role.ClaimHolder.RemoveClaim(claim); err != nil {
		return err
	}
	return s.Update(ctx, role)
}

func (s *fakeRoleStore) Dispose() {}

// recordingPublisher captures published events for assertions
type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) names() []string {
	names := make([]string, 0, len(p.published))
	for _, e := range p.published {
		names = append(names, e.EventName())
	}
	return names
}

func testPolicy() config.IdentityConfig {
	return config.IdentityConfig{
		Password: config.PasswordConfig{
			MinLength:    8,
			RequireDigit: true,
			RequireUpper: true,
			RequireLower: true,
		},
		Lockout: config.LockoutConfig{
			MaxAccessFailures: 3,
			Duration:          5 * time.Minute,
		},
		AllowedUserName: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+",
	}
}

func newTestService(t *testing.T) (*Service, *fakeUserStore, *fakeRoleStore, *recordingPublisher) {
	t.Helper()

	users := newFakeUserStore()
	roles := newFakeRoleStore()
	publisher := &recordingPublisher{}

	rng := rand.New(rand.NewSource(1))
	svc := NewService(
		users,
		roles,
		keygen.NewGenerator(keygen.UUID, rng),
		keygen.NewGenerator(keygen.UUID, rng),
		testPolicy(),
		publisher,
		logger.NewDefault(),
	)
	return svc, users, roles, publisher
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should register a user with hashed password", func(t *testing.T) {
		svc, users, _, publisher := newTestService(t)

		user, err := svc.Register(ctx, "alice", "Alice@Example.com", "Sup3rSecret")

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "ALICE", user.NormalizedUserName)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "ALICE@EXAMPLE.COM", user.NormalizedEmail)
		assert.NotEmpty(t, user.SecurityStamp)
		assert.True(t, user.LockoutEnabled)

		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Sup3rSecret")))

		stored, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)

		assert.Equal(t, []string{"UserRegistered"}, publisher.names())
	})

	t.Run("should reject a password missing a digit", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice", "", "NoDigitsHere")

		require.Error(t, err)
		assert.True(t, shared.IsPasswordPolicy(err))
	})

	t.Run("should reject a too-short password", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice", "", "Ab1")

		require.Error(t, err)
		assert.True(t, shared.IsPasswordPolicy(err))
	})

	t.Run("should reject disallowed username characters", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice smith", "", "Sup3rSecret")

		require.Error(t, err)
		assert.True(t, shared.IsInvalidUserName(err))
	})

	t.Run("should reject a duplicate username", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.Error(t, err)
		assert.True(t, shared.IsDuplicateKey(err))
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, svc *Service) *identity.User {
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)
		return user
	}

	t.Run("should authenticate valid credentials", func(t *testing.T) {
		svc, _, _, publisher := newTestService(t)
		register(t, svc)

		user, err := svc.Authenticate(ctx, "alice", "Sup3rSecret")

		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Contains(t, publisher.names(), "SignInSucceeded")
	})

	t.Run("should return invalid credentials for an unknown user", func(t *testing.T) {
		svc, _, _, publisher := newTestService(t)

		_, err := svc.Authenticate(ctx, "nobody", "whatever")

		require.Error(t, err)
		assert.True(t, shared.IsInvalidCredentials(err))
		assert.Contains(t, publisher.names(), "SignInFailed")
	})

	t.Run("should count failures and lock at the threshold", func(t *testing.T) {
		svc, users, _, publisher := newTestService(t)
		registered := register(t, svc)

		// Two failures stay below the threshold of three
		for i := 0; i < 2; i++ {
			_, err := svc.Authenticate(ctx, "alice", "wrong")
			require.Error(t, err)
			assert.True(t, shared.IsInvalidCredentials(err))
		}

		stored, err := users.FindByID(ctx, registered.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.AccessFailedCount)

		// Third failure crosses the threshold
		_, err = svc.Authenticate(ctx, "alice", "wrong")
		require.Error(t, err)
		assert.True(t, shared.IsLockedOut(err))
		assert.Contains(t, publisher.names(), "UserLockedOut")

		stored, err = users.FindByID(ctx, registered.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LockoutEnd)
		assert.Equal(t, 0, stored.AccessFailedCount)

		// Even correct credentials are refused while locked
		_, err = svc.Authenticate(ctx, "alice", "Sup3rSecret")
		require.Error(t, err)
		assert.True(t, shared.IsLockedOut(err))
	})

	t.Run("should reset the failure count on success", func(t *testing.T) {
		svc, users, _, _ := newTestService(t)
		registered := register(t, svc)

		_, err := svc.Authenticate(ctx, "alice", "wrong")
		require.Error(t, err)

		_, err = svc.Authenticate(ctx, "alice", "Sup3rSecret")
		require.NoError(t, err)

		stored, err := users.FindByID(ctx, registered.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.AccessFailedCount)
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("should rotate the security stamp", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)
		oldStamp := user.SecurityStamp

		err = svc.ChangePassword(ctx, user, "Sup3rSecret", "An0therSecret")

		require.NoError(t, err)
		assert.NotEqual(t, oldStamp, user.SecurityStamp)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("An0therSecret")))
	})

	t.Run("should reject a wrong old password", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, user, "wrong", "An0therSecret")

		require.Error(t, err)
		assert.True(t, shared.IsInvalidCredentials(err))
	})

	t.Run("should apply the policy to the new password", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, user, "Sup3rSecret", "weak")

		require.Error(t, err)
		assert.True(t, shared.IsPasswordPolicy(err))
	})
}

func TestService_Roles(t *testing.T) {
	ctx := context.Background()

	t.Run("should add a user to an existing role", func(t *testing.T) {
		svc, users, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)
		role, err := svc.CreateRole(ctx, "admin")
		require.NoError(t, err)

		err = svc.AddToRole(ctx, user, "admin")

		require.NoError(t, err)
		stored, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.HasRole(role.ID))
	})

	t.Run("should refuse membership in a missing role", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		err = svc.AddToRole(ctx, user, "ghost")

		require.Error(t, err)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("should skip orphaned role ids when resolving names", func(t *testing.T) {
		svc, _, roles, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		role, err := svc.CreateRole(ctx, "admin")
		require.NoError(t, err)
		require.NoError(t, svc.AddToRole(ctx, user, "admin"))

		// Delete the role out from under the membership
		require.NoError(t, roles.Delete(ctx, role))

		names, err := svc.RoleNames(ctx, user)

		require.NoError(t, err)
		assert.Empty(t, names)
		assert.True(t, user.HasRole(role.ID), "membership is not cleaned up")
	})
}

func TestService_Tokens(t *testing.T) {
	ctx := context.Background()

	t.Run("should set and remove a provider token", func(t *testing.T) {
		svc, users, _, _ := newTestService(t)
		user, err := svc.Register(ctx, "alice", "", "Sup3rSecret")
		require.NoError(t, err)

		err = svc.SetUserToken(ctx, user, "google", "refresh", "v1")
		require.NoError(t, err)

		stored, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.GetToken("google", "refresh"))

		err = svc.RemoveUserToken(ctx, user, "google", "refresh")
		require.NoError(t, err)

		stored, err = users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.GetToken("google", "refresh"))
	})
}
