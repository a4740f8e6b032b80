package identity

import (
	"context"
)

// UserStore is the persistence contract for user documents.
//
// Finders return (nil, nil) when no document matches; absence is not an
// error. Update and Delete are conditional on the caller's last-read
// version and fail with a concurrency error when it is stale. The
// claim/login/role/token operations mutate the in-memory document and
// then persist it back wholesale through the same conditional write.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error

	FindByID(ctx context.Context, id string) (*User, error)
	FindByName(ctx context.Context, normalizedName string) (*User, error)
	FindByEmail(ctx context.Context, normalizedEmail string) (*User, error)
	FindByLogin(ctx context.Context, provider, providerKey string) (*User, error)

	AddClaims(ctx context.Context, user *User, claims []Claim) error
	ReplaceClaim(ctx context.Context, user *User, oldClaim, newClaim *Claim) error
	RemoveClaims(ctx context.Context, user *User, claims []Claim) error

	AddLogin(ctx context.Context, user *User, login *UserLogin) error
	RemoveLogin(ctx context.Context, user *User, provider, providerKey string) error

	AddToRole(ctx context.Context, user *User, roleID string) error
	RemoveFromRole(ctx context.Context, user *User, roleID string) error

	SetToken(ctx context.Context, user *User, token *UserToken) error
	RemoveToken(ctx context.Context, user *User, provider, name string) error

	// Dispose transitions the store to its terminal state. It is
	// idempotent; every operation on a disposed store fails.
	Dispose()
}

// RoleStore is the persistence contract for role documents, with the
// same conditional-write and nil-on-absence semantics as UserStore.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, role *Role) error

	FindByID(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, normalizedName string) (*Role, error)

	AddClaim(ctx context.Context, role *Role, claim *Claim) error
	RemoveClaim(ctx context.Context, role *Role, claim *Claim) error

	Dispose()
}
