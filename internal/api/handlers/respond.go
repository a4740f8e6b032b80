package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
)

// ErrorResponse is the JSON body for failed requests
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps a domain error to an HTTP status and writes it.
// Unrecognized errors become opaque 500s; the caller logs the detail.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsInvalidArgument(err),
		shared.IsPasswordPolicy(err),
		shared.IsInvalidUserName(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case shared.IsInvalidCredentials(err):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case shared.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case shared.IsDuplicateKey(err), shared.IsConcurrencyFailure(err):
		writeError(w, http.StatusConflict, err.Error())
	case shared.IsLockedOut(err):
		writeError(w, http.StatusLocked, "account is locked out")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
