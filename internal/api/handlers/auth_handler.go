package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/danghamo/mongoidentity/internal/api/middleware"
	"github.com/danghamo/mongoidentity/internal/domain/account"
	"github.com/danghamo/mongoidentity/pkg/logger"
)

// AuthHandler handles registration and credential-based sign-in
type AuthHandler struct {
	logger     *logger.Logger
	accounts   *account.Service
	jwtService *account.JWTService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logger *logger.Logger, accounts *account.Service, jwtService *account.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:     logger.WithComponent("auth-handler"),
		accounts:   accounts,
		jwtService: jwtService,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	UserName string `json:"user_name"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// RegisterResponse represents a registration response
type RegisterResponse struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// LoginRequest represents a credential sign-in request
type LoginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

// LoginResponse represents a successful sign-in response
type LoginResponse struct {
	JWTToken  string `json:"jwt_token"`
	UserID    string `json:"user_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	Token string `json:"token"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleRegister handles POST /api/v1/auth.Register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.accounts.Register(r.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Registration failed",
			zap.String("userName", req.UserName),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}

	h.logger.Info("User registered via API", zap.String("userId", user.ID))
	writeJSON(w, http.StatusCreated, RegisterResponse{
		UserID:   user.ID,
		UserName: user.UserName,
	})
}

// HandleLogin handles POST /api/v1/auth.Login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.UserName, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	jwtToken, err := h.jwtService.GenerateToken(user)
	if err != nil {
		h.logger.Error("Failed to generate JWT token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		JWTToken:  jwtToken,
		UserID:    user.ID,
		ExpiresIn: h.jwtService.ExpirySeconds(),
	})
}

// HandleRefresh handles POST /api/v1/auth.Refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jwtToken, err := h.jwtService.RefreshToken(req.Token)
	if err != nil {
		h.logger.Debug("Token refresh failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jwt_token":  jwtToken,
		"expires_in": h.jwtService.ExpirySeconds(),
	})
}

// HandleChangePassword handles POST /api/v1/auth.ChangePassword (auth required)
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("Password changed", zap.String("userId", userID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
