package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/internal/api/middleware"
	"github.com/danghamo/mongoidentity/internal/domain/account"
	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

// UserHandler handles operations on the authenticated user's own document
type UserHandler struct {
	logger   *logger.Logger
	accounts *account.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(logger *logger.Logger, accounts *account.Service) *UserHandler {
	return &UserHandler{
		logger:   logger.WithComponent("user-handler"),
		accounts: accounts,
	}
}

// UserProfile is the externally visible projection of a user document
type UserProfile struct {
	ID               string               `json:"id"`
	UserName         string               `json:"user_name"`
	Email            string               `json:"email,omitempty"`
	PhoneNumber      string               `json:"phone_number,omitempty"`
	TwoFactorEnabled bool                 `json:"two_factor_enabled"`
	Roles            []string             `json:"roles"`
	Claims           []identity.Claim     `json:"claims"`
	Logins           []identity.UserLogin `json:"logins"`
}

// profilePatch is the subset of the profile a merge patch may touch
type profilePatch struct {
	Email            string `json:"email"`
	PhoneNumber      string `json:"phone_number"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// SetTokenRequest represents a provider token set request
type SetTokenRequest struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// RemoveTokenRequest represents a provider token removal request
type RemoveTokenRequest struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// RoleRequest represents a role membership change request
type RoleRequest struct {
	Role string `json:"role"`
}

// requireUser resolves the authenticated user or writes the error response
func (h *UserHandler) requireUser(w http.ResponseWriter, r *http.Request) *identity.User {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return nil
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	return user
}

func toProfile(user *identity.User) UserProfile {
	return UserProfile{
		ID:               user.ID,
		UserName:         user.UserName,
		Email:            user.Email,
		PhoneNumber:      user.PhoneNumber,
		TwoFactorEnabled: user.TwoFactorEnabled,
		Roles:            user.Roles,
		Claims:           user.Claims,
		Logins:           user.Logins,
	}
}

// HandleMe handles GET /api/v1/user.Me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	writeJSON(w, http.StatusOK, toProfile(user))
}

// HandlePatch handles PATCH /api/v1/user.Patch.
//
// The body is an RFC 7386 merge patch against the editable profile
// fields; anything outside that subset is ignored.
func (h *UserHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	patch, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	current, err := json.Marshal(profilePatch{
		Email:            user.Email,
		PhoneNumber:      user.PhoneNumber,
		TwoFactorEnabled: user.TwoFactorEnabled,
	})
	if err != nil {
		h.logger.Error("Failed to marshal profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid merge patch")
		return
	}

	var next profilePatch
	if err := json.Unmarshal(merged, &next); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid merge patch")
		return
	}

	user.Email = next.Email
	user.NormalizedEmail = account.Normalize(next.Email)
	user.PhoneNumber = next.PhoneNumber
	user.TwoFactorEnabled = next.TwoFactorEnabled

	if err := h.accounts.UpdateUser(r.Context(), user); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("Profile patched", zap.String("userId", user.ID))
	writeJSON(w, http.StatusOK, toProfile(user))
}

// HandleRoles handles GET /api/v1/user.Roles
func (h *UserHandler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	names, err := h.accounts.RoleNames(r.Context(), user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"roles": names})
}

// HandleAddRole handles POST /api/v1/user.AddRole
func (h *UserHandler) HandleAddRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.accounts.AddToRole(r.Context(), user, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("Role added",
		zap.String("userId", user.ID),
		zap.String("role", req.Role))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRemoveRole handles POST /api/v1/user.RemoveRole
func (h *UserHandler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.accounts.RemoveFromRole(r.Context(), user, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClaimRequest represents a user claim change request
type ClaimRequest struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Issuer string `json:"issuer,omitempty"`
}

// HandleAddClaim handles POST /api/v1/user.AddClaim
func (h *UserHandler) HandleAddClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "Type is required")
		return
	}

	claim := identity.Claim{Type: req.Type, Value: req.Value, Issuer: req.Issuer}
	if err := h.accounts.AddUserClaims(r.Context(), user, []identity.Claim{claim}); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRemoveClaim handles POST /api/v1/user.RemoveClaim
func (h *UserHandler) HandleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim := identity.Claim{Type: req.Type, Value: req.Value}
	if err := h.accounts.RemoveUserClaims(r.Context(), user, []identity.Claim{claim}); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSetToken handles POST /api/v1/user.SetToken
func (h *UserHandler) HandleSetToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req SetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Provider == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Provider and name are required")
		return
	}

	if err := h.accounts.SetUserToken(r.Context(), user, req.Provider, req.Name, req.Value); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRemoveToken handles POST /api/v1/user.RemoveToken
func (h *UserHandler) HandleRemoveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req RemoveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.accounts.RemoveUserToken(r.Context(), user, req.Provider, req.Name); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
