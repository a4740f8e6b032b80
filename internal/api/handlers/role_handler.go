package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/internal/domain/account"
	"github.com/danghamo/mongoidentity/internal/domain/identity"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

// RoleHandler handles role lifecycle and role claim operations
type RoleHandler struct {
	logger   *logger.Logger
	accounts *account.Service
	roles    identity.RoleStore
}

// NewRoleHandler creates a new role handler
func NewRoleHandler(logger *logger.Logger, accounts *account.Service, roles identity.RoleStore) *RoleHandler {
	return &RoleHandler{
		logger:   logger.WithComponent("role-handler"),
		accounts: accounts,
		roles:    roles,
	}
}

// CreateRoleRequest represents a role creation request
type CreateRoleRequest struct {
	Name string `json:"name"`
}

// RoleResponse represents a role document
type RoleResponse struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Claims []identity.Claim `json:"claims"`
}

// RoleClaimRequest represents a role claim change request
type RoleClaimRequest struct {
	Role  string `json:"role"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// HandleCreate handles POST /api/v1/role.Create
func (h *RoleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	role, err := h.accounts.CreateRole(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("Role created",
		zap.String("roleId", role.ID),
		zap.String("name", role.Name))
	writeJSON(w, http.StatusCreated, RoleResponse{
		ID:     role.ID,
		Name:   role.Name,
		Claims: role.Claims,
	})
}

// HandleGet handles GET /api/v1/role.Get?name=...
func (h *RoleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	role, err := h.roles.FindByName(r.Context(), account.Normalize(name))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}

	writeJSON(w, http.StatusOK, RoleResponse{
		ID:     role.ID,
		Name:   role.Name,
		Claims: role.Claims,
	})
}

// findRole resolves a role by name or writes the error response
func (h *RoleHandler) findRole(w http.ResponseWriter, r *http.Request, name string) *identity.Role {
	role, err := h.roles.FindByName(r.Context(), account.Normalize(name))
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return nil
	}
	return role
}

// HandleAddClaim handles POST /api/v1/role.AddClaim
func (h *RoleHandler) HandleAddClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RoleClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	role := h.findRole(w, r, req.Role)
	if role == nil {
		return
	}

	claim := &identity.Claim{Type: req.Type, Value: req.Value}
	if err := h.roles.AddClaim(r.Context(), role, claim); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRemoveClaim handles POST /api/v1/role.RemoveClaim
func (h *RoleHandler) HandleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RoleClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	role := h.findRole(w, r, req.Role)
	if role == nil {
		return
	}

	claim := &identity.Claim{Type: req.Type, Value: req.Value}
	if err := h.roles.RemoveClaim(r.Context(), role, claim); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
