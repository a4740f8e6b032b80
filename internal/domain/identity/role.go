package identity

import (
	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/pkg/keygen"
)

// Role is an identity role document. Membership is not stored here;
// users carry the list of role ids they belong to.
type Role struct {
	ID             string `bson:"_id" json:"id"`
	Name           string `bson:"name" json:"name"`
	NormalizedName string `bson:"normalizedName" json:"normalized_name"`
	Version        int    `bson:"version" json:"version"`

	ClaimHolder `bson:",inline"`
}

// NewRole creates a role document with a generated key and version 1.
//
// With the external key strategy the ID is left empty and must be set
// through SetID before the document is stored.
func NewRole(name string, gen *keygen.Generator) (*Role, error) {
	if name == "" {
		return nil, shared.ErrInvalidArgument("name")
	}
	if gen == nil {
		return nil, shared.ErrInvalidArgument("gen")
	}

	r := &Role{
		Name:        name,
		Version:     1,
		ClaimHolder: ClaimHolder{Claims: []Claim{}},
	}

	if gen.Strategy() != keygen.External {
		id, err := gen.Generate()
		if err != nil {
			return nil, err
		}
		r.ID = id
	}

	return r, nil
}

// SetID overrides the primary key. This is the only sanctioned way to
// reassign a key after construction.
func (r *Role) SetID(id string) *Role {
	r.ID = id
	return r
}
