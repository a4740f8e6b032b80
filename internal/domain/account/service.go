package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/internal/events"
	"github.com/danghamo/mongoidentity/pkg/config"
	"github.com/danghamo/mongoidentity/pkg/keygen"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

// Service is the consuming side of the identity stores: registration,
// credential checks, lockout accounting, and role assignment.
//
// Policy settings arrive from configuration and are applied here; the
// stores themselves never interpret them.
type Service struct {
	users     identity.UserStore
	roles     identity.RoleStore
	userKeys  *keygen.Generator
	roleKeys  *keygen.Generator
	policy    config.IdentityConfig
	publisher events.Publisher
	logger    *logger.Logger
}

// NewService creates a new account service
func NewService(
	users identity.UserStore,
	roles identity.RoleStore,
	userKeys *keygen.Generator,
	roleKeys *keygen.Generator,
	policy config.IdentityConfig,
	publisher events.Publisher,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		users:     users,
		roles:     roles,
		userKeys:  userKeys,
		roleKeys:  roleKeys,
		policy:    policy,
		publisher: publisher,
		logger:    log.WithComponent("account-service"),
	}
}

// Normalize converts a username or email to its lookup form
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Register creates and stores a new user with a hashed password
func (s *Service) Register(ctx context.Context, userName, email, password string) (*identity.User, error) {
	if err := s.validateUserName(userName); err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	user, err := identity.NewUser(userName, s.userKeys)
	if err != nil {
		return nil, err
	}

	user.NormalizedUserName = Normalize(userName)
	if email != "" {
		email = strings.ToLower(strings.TrimSpace(email))
		if err := user.SetEmail(email); err != nil {
			return nil, err
		}
		user.NormalizedEmail = Normalize(email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = string(hash)
	user.SecurityStamp = uuid.New().String()
	user.LockoutEnabled = true

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(events.UserRegistered{
		UserID:     user.ID,
		UserName:   user.UserName,
		OccurredAt: time.Now().UTC(),
	})

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return user, nil
}

// Authenticate checks credentials and maintains lockout accounting.
//
// A failed check increments the access-failed count; crossing the
// configured threshold locks the account for the configured duration.
// A successful check resets the count.
func (s *Service) Authenticate(ctx context.Context, userName, password string) (*identity.User, error) {
	user, err := s.users.FindByName(ctx, Normalize(userName))
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.publish(events.SignInFailed{
			UserName:   userName,
			Reason:     "unknown user",
			OccurredAt: time.Now().UTC(),
		})
		return nil, shared.ErrInvalidCredentials()
	}

	now := time.Now().UTC()
	if user.IsLockedOut(now) {
		s.publish(events.SignInFailed{
			UserID:     user.ID,
			UserName:   userName,
			Reason:     "locked out",
			OccurredAt: now,
		})
		return nil, shared.ErrLockedOut()
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, s.recordAccessFailure(ctx, user, userName, now)
	}

	if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
		user.ResetAccessFailedCount()
		user.LockoutEnd = nil
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	s.publish(events.SignInSucceeded{
		UserID:     user.ID,
		OccurredAt: now,
	})
	return user, nil
}

// recordAccessFailure bumps the failure counter and locks the account
// once the threshold is crossed. Always returns a credential or lockout
// error for the caller.
func (s *Service) recordAccessFailure(ctx context.Context, user *identity.User, userName string, now time.Time) error {
	user.AccessFailedCount++

	lockedOut := false
	if user.LockoutEnabled && user.AccessFailedCount >= s.policy.Lockout.MaxAccessFailures {
		user.LockUntil(now.Add(s.policy.Lockout.Duration))
		user.ResetAccessFailedCount()
		lockedOut = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if lockedOut {
		s.publish(events.UserLockedOut{
			UserID:     user.ID,
			Until:      *user.LockoutEnd,
			OccurredAt: now,
		})
		s.logger.Warn("Account locked out",
			zap.String("user_id", user.ID),
			zap.Time("until", *user.LockoutEnd),
		)
		return shared.ErrLockedOut()
	}

	s.publish(events.SignInFailed{
		UserID:     user.ID,
		UserName:   userName,
		Reason:     "invalid password",
		OccurredAt: now,
	})
	return shared.ErrInvalidCredentials()
}

// ChangePassword verifies the old password, applies the policy to the
// new one, and rotates the security stamp.
func (s *Service) ChangePassword(ctx context.Context, user *identity.User, oldPassword, newPassword string) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return shared.ErrInvalidCredentials()
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	user.SecurityStamp = uuid.New().String()

	return s.users.Update(ctx, user)
}

// GetUser returns a user by id, or a not-found error
func (s *Service) GetUser(ctx context.Context, id string) (*identity.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, shared.ErrNotFound("user")
	}
	return user, nil
}

// CreateRole creates and stores a new role
func (s *Service) CreateRole(ctx context.Context, name string) (*identity.Role, error) {
	role, err := identity.NewRole(name, s.roleKeys)
	if err != nil {
		return nil, err
	}
	role.NormalizedName = Normalize(name)

	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// AddToRole adds the user to the named role. The role must exist.
func (s *Service) AddToRole(ctx context.Context, user *identity.User, roleName string) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	role, err := s.roles.FindByName(ctx, Normalize(roleName))
	if err != nil {
		return err
	}
	if role == nil {
		return shared.ErrNotFound("role")
	}
	return s.users.AddToRole(ctx, user, role.ID)
}

// RemoveFromRole removes the user from the named role
func (s *Service) RemoveFromRole(ctx context.Context, user *identity.User, roleName string) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	role, err := s.roles.FindByName(ctx, Normalize(roleName))
	if err != nil {
		return err
	}
	if role == nil {
		return shared.ErrNotFound("role")
	}
	return s.users.RemoveFromRole(ctx, user, role.ID)
}

// RoleNames resolves the user's role ids to names.
//
// Role deletion leaves memberships behind, so ids that no longer
// resolve are skipped rather than treated as errors.
func (s *Service) RoleNames(ctx context.Context, user *identity.User) ([]string, error) {
	if user == nil {
		return nil, shared.ErrInvalidArgument("user")
	}

	names := make([]string, 0, len(user.Roles))
	for _, roleID := range user.Roles {
		role, err := s.roles.FindByID(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
			continue
		}
		names = append(names, role.Name)
	}
	return names, nil
}

// AddUserClaims adds claims to the user document
func (s *Service) AddUserClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	return s.users.AddClaims(ctx, user, claims)
}

// RemoveUserClaims removes matching claims from the user document
func (s *Service) RemoveUserClaims(ctx context.Context, user *identity.User, claims []identity.Claim) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	return s.users.RemoveClaims(ctx, user, claims)
}

// SetUserToken stores a provider-scoped token value on the user
func (s *Service) SetUserToken(ctx context.Context, user *identity.User, provider, name, value string) error {
	return s.users.SetToken(ctx, user, &identity.UserToken{
		Provider: provider,
		Name:     name,
		Value:    value,
	})
}

// RemoveUserToken removes a provider-scoped token from the user
func (s *Service) RemoveUserToken(ctx context.Context, user *identity.User, provider, name string) error {
	return s.users.RemoveToken(ctx, user, provider, name)
}

// UpdateUser persists profile edits made by the caller
func (s *Service) UpdateUser(ctx context.Context, user *identity.User) error {
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	return s.users.Update(ctx, user)
}

// validateUserName applies the allowed-character policy
func (s *Service) validateUserName(userName string) error {
	if userName == "" {
		return shared.ErrInvalidArgument("userName")
	}
	if s.policy.AllowedUserName == "" {
		return nil
	}
	for _, r := range userName {
		if !strings.ContainsRune(s.policy.AllowedUserName, r) {
			return shared.NewDomainErrorf(shared.ErrCodeInvalidUserName,
				"username contains disallowed character %q", r)
		}
	}
	return nil
}

// validatePassword applies the complexity policy
func (s *Service) validatePassword(password string) error {
	p := s.policy.Password

	if len(password) < p.MinLength {
		return shared.NewDomainErrorf(shared.ErrCodePasswordPolicy,
			"password must be at least %d characters", p.MinLength)
	}

	var hasDigit, hasUpper, hasLower, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		default:
			hasSpecial = true
		}
	}

	if p.RequireDigit && !hasDigit {
		return shared.NewDomainError(shared.ErrCodePasswordPolicy, "password must contain a digit")
	}
	if p.RequireUpper && !hasUpper {
		return shared.NewDomainError(shared.ErrCodePasswordPolicy, "password must contain an uppercase letter")
	}
	if p.RequireLower && !hasLower {
		return shared.NewDomainError(shared.ErrCodePasswordPolicy, "password must contain a lowercase letter")
	}
	if p.RequireSpecial && !hasSpecial {
		return shared.NewDomainError(shared.ErrCodePasswordPolicy, "password must contain a special character")
	}
	return nil
}

// publish sends an event if a publisher is wired; event delivery is
// best-effort and never fails the calling operation
func (s *Service) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("Failed to publish identity event", zap.Error(err))
	}
}
