package identity

import (
	"github.com/danghamo/mongoidentity/internal/domain/shared"
)

// Claim represents an assertion about a user or role, embedded directly
// in the owning document. Claims have no independent identity; two claims
// are the same claim when their type and value match.
type Claim struct {
	Type   string            `bson:"type" json:"type"`
	Value  string            `bson:"value" json:"value"`
	Issuer string            `bson:"issuer,omitempty" json:"issuer,omitempty"`
	Props  map[string]string `bson:"props,omitempty" json:"props,omitempty"`
}

// Matches reports whether two claims agree on (type, value)
func (c Claim) Matches(other Claim) bool {
	return c.Type == other.Type && c.Value == other.Value
}

// ClaimHolder is embedded in documents that carry a claim list.
//
// All mutations are pure in-memory list operations; persistence is the
// store's concern.
type ClaimHolder struct {
	Claims []Claim `bson:"claims" json:"claims"`
}

// AddClaim appends a claim unless an equal (type, value) claim already
// exists. Returns true if the claim was added.
func (h *ClaimHolder) AddClaim(claim *Claim) (bool, error) {
	if claim == nil {
		return false, shared.ErrInvalidArgument("claim")
	}

	// prevent adding duplicate claims
	if h.HasClaim(*claim) {
		return false, nil
	}

	h.Claims = append(h.Claims, *claim)
	return true, nil
}

// HasClaim reports whether a claim with the same (type, value) is present
func (h *ClaimHolder) HasClaim(claim Claim) bool {
	if h.Claims == nil {
		h.Claims = []Claim{}
	}
	for _, c := range h.Claims {
		if c.Matches(claim) {
			return true
		}
	}
	return false
}

// ReplaceClaim overwrites every claim matching (type, value) of oldClaim
// with newClaim's fields, in place. Returns true if at least one claim
// was updated.
func (h *ClaimHolder) ReplaceClaim(oldClaim, newClaim *Claim) (bool, error) {
	if oldClaim == nil {
		return false, shared.ErrInvalidArgument("oldClaim")
	}
	if newClaim == nil {
		return false, shared.ErrInvalidArgument("newClaim")
	}

	replaced := false
	for i := range h.Claims {
		if h.Claims[i].Matches(*oldClaim) {
			h.Claims[i].Type = newClaim.Type
			h.Claims[i].Value = newClaim.Value
			h.Claims[i].Issuer = newClaim.Issuer
			h.Claims[i].Props = newClaim.Props
			replaced = true
		}
	}
	return replaced, nil
}

// RemoveClaim removes the first claim matching (type, value).
// Returns true if a claim was removed.
func (h *ClaimHolder) RemoveClaim(claim *Claim) (bool, error) {
	if claim == nil {
		return false, shared.ErrInvalidArgument("claim")
	}

	for i := range h.Claims {
		if h.Claims[i].Matches(*claim) {
			h.Claims = append(h.Claims[:i], h.Claims[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// RemoveClaims removes every claim matching any of the given claims.
// Returns true if at least one claim was removed.
func (h *ClaimHolder) RemoveClaims(claims []Claim) bool {
	removed := false
	for _, claim := range claims {
		kept := h.Claims[:0]
		for _, c := range h.Claims {
			if c.Matches(claim) {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		h.Claims = kept
	}
	return removed
}
