package identity

import (
	"time"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/pkg/keygen"
)

// UserLogin represents an external identity provider linkage embedded in
// a user document. Uniqueness is (provider, provider key).
type UserLogin struct {
	Provider    string `bson:"provider" json:"provider"`
	ProviderKey string `bson:"providerKey" json:"provider_key"`
	DisplayName string `bson:"displayName,omitempty" json:"display_name,omitempty"`
}

// UserToken represents a named secret value scoped to a login provider,
// embedded in a user document. Uniqueness is (provider, name).
type UserToken struct {
	Provider string `bson:"provider" json:"provider"`
	Name     string `bson:"name" json:"name"`
	Value    string `bson:"value" json:"-"`
}

// User is an identity user document.
//
// The primary key is assigned at construction and never reassigned except
// through SetID. Version starts at 1 and is bumped by the store on every
// successful write; it is the optimistic-concurrency stamp.
type User struct {
	ID                 string     `bson:"_id" json:"id"`
	UserName           string     `bson:"userName" json:"user_name"`
	NormalizedUserName string     `bson:"normalizedUserName" json:"normalized_user_name"`
	Email              string     `bson:"email,omitempty" json:"email,omitempty"`
	NormalizedEmail    string     `bson:"normalizedEmail,omitempty" json:"normalized_email,omitempty"`
	PasswordHash       string     `bson:"passwordHash,omitempty" json:"-"`
	SecurityStamp      string     `bson:"securityStamp,omitempty" json:"-"`
	PhoneNumber        string     `bson:"phoneNumber,omitempty" json:"phone_number,omitempty"`
	TwoFactorEnabled   bool       `bson:"twoFactorEnabled" json:"two_factor_enabled"`
	LockoutEnabled     bool       `bson:"lockoutEnabled" json:"lockout_enabled"`
	LockoutEnd         *time.Time `bson:"lockoutEnd,omitempty" json:"lockout_end,omitempty"`
	AccessFailedCount  int        `bson:"accessFailedCount" json:"access_failed_count"`
	Version            int        `bson:"version" json:"version"`
	CreatedOn          time.Time  `bson:"createdOn" json:"created_on"`

	ClaimHolder `bson:",inline"`

	Logins []UserLogin `bson:"logins" json:"logins"`
	Roles  []string    `bson:"roles" json:"roles"`
	Tokens []UserToken `bson:"tokens" json:"-"`
}

// NewUser creates a user document with a generated key and version 1.
//
// With the external key strategy the ID is left empty and must be set
// through SetID before the document is stored.
func NewUser(userName string, gen *keygen.Generator) (*User, error) {
	if userName == "" {
		return nil, shared.ErrInvalidArgument("userName")
	}
	if gen == nil {
		return nil, shared.ErrInvalidArgument("gen")
	}

	u := &User{
		UserName:    userName,
		Version:     1,
		CreatedOn:   time.Now().UTC(),
		ClaimHolder: ClaimHolder{Claims: []Claim{}},
		Logins:      []UserLogin{},
		Roles:       []string{},
		Tokens:      []UserToken{},
	}

	if gen.Strategy() != keygen.External {
		id, err := gen.Generate()
		if err != nil {
			return nil, err
		}
		u.ID = id
	}

	return u, nil
}

// SetID overrides the primary key. This is the only sanctioned way to
// reassign a key after construction.
func (u *User) SetID(id string) *User {
	u.ID = id
	return u
}

// SetEmail sets the email address
func (u *User) SetEmail(email string) error {
	if email == "" {
		return shared.ErrInvalidArgument("email")
	}
	u.Email = email
	return nil
}

// LockUntil locks the account until the given time
func (u *User) LockUntil(end time.Time) {
	u.LockoutEnd = &end
}

// IsLockedOut reports whether the account is currently locked
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// ResetAccessFailedCount clears the failed-attempt counter
func (u *User) ResetAccessFailedCount() {
	u.AccessFailedCount = 0
}

// --- Login management ---

// AddLogin records an external provider login unless an equal
// (provider, key) login already exists. Returns true if added.
func (u *User) AddLogin(login *UserLogin) (bool, error) {
	if login == nil {
		return false, shared.ErrInvalidArgument("login")
	}
	if u.HasLogin(*login) {
		return false, nil
	}
	u.Logins = append(u.Logins, *login)
	return true, nil
}

// HasLogin reports whether a login with the same (provider, key) exists
func (u *User) HasLogin(login UserLogin) bool {
	for _, l := range u.Logins {
		if l.Provider == login.Provider && l.ProviderKey == login.ProviderKey {
			return true
		}
	}
	return false
}

// RemoveLogin removes the login matching (provider, key).
// Returns true if a login was removed.
func (u *User) RemoveLogin(login *UserLogin) (bool, error) {
	if login == nil {
		return false, shared.ErrInvalidArgument("login")
	}
	for i, l := range u.Logins {
		if l.Provider == login.Provider && l.ProviderKey == login.ProviderKey {
			u.Logins = append(u.Logins[:i], u.Logins[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// GetLogin returns the login matching (provider, key), or nil
func (u *User) GetLogin(provider, providerKey string) *UserLogin {
	for i := range u.Logins {
		if u.Logins[i].Provider == provider && u.Logins[i].ProviderKey == providerKey {
			return &u.Logins[i]
		}
	}
	return nil
}

// --- Role membership ---

// AddRole adds a role id unless already present. Returns true if added.
func (u *User) AddRole(roleID string) bool {
	if u.HasRole(roleID) {
		return false
	}
	u.Roles = append(u.Roles, roleID)
	return true
}

// RemoveRole removes a role id. Returns true if it was present.
func (u *User) RemoveRole(roleID string) bool {
	for i, r := range u.Roles {
		if r == roleID {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// HasRole reports whether the user holds the given role id
func (u *User) HasRole(roleID string) bool {
	for _, r := range u.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// --- Token management ---

// SetToken stores a token value for (provider, name), adding the token
// if absent or overwriting the value if present. Returns true if the
// token list changed.
func (u *User) SetToken(token *UserToken) (bool, error) {
	if token == nil {
		return false, shared.ErrInvalidArgument("token")
	}
	for i := range u.Tokens {
		if u.Tokens[i].Provider == token.Provider && u.Tokens[i].Name == token.Name {
			if u.Tokens[i].Value == token.Value {
				return false, nil
			}
			u.Tokens[i].Value = token.Value
			return true, nil
		}
	}
	u.Tokens = append(u.Tokens, *token)
	return true, nil
}

// GetToken returns the token matching (provider, name), or nil
func (u *User) GetToken(provider, name string) *UserToken {
	for i := range u.Tokens {
		if u.Tokens[i].Provider == provider && u.Tokens[i].Name == name {
			return &u.Tokens[i]
		}
	}
	return nil
}

// HasToken reports whether an identical (provider, name, value) token exists
func (u *User) HasToken(token UserToken) bool {
	for _, t := range u.Tokens {
		if t.Provider == token.Provider && t.Name == token.Name && t.Value == token.Value {
			return true
		}
	}
	return false
}

// RemoveToken removes the token matching (provider, name).
// Returns true if a token was removed.
func (u *User) RemoveToken(provider, name string) bool {
	for i, t := range u.Tokens {
		if t.Provider == provider && t.Name == name {
			u.Tokens = append(u.Tokens[:i], u.Tokens[i+1:]...)
			return true
		}
	}
	return false
}
