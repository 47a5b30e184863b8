package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
)

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Log("error", "response_encode_failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, kind, message string) {
	writeJSON(w, status, errorBody{
		Error:     errorDetail{Kind: kind, Message: message},
		RequestID: w.Header().Get("X-Request-Id"),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON for this endpoint")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// handleAuthError maps domain errors onto HTTP responses. The mapping is the
// only place status codes for auth failures are decided, so every endpoint
// discloses the same amount.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *auth.WeakPasswordError
	if errors.As(err, &weak) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: errorDetail{Kind: "weak_password", Message: weak.Error()},
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusBadRequest, "duplicate_email", "an account with this email already exists")
	case errors.Is(err, auth.ErrInviteCodeInvalid):
		writeError(w, r, http.StatusBadRequest, "invite_code_invalid", "invite code is invalid or expired")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusBadRequest, "already_exists", "resource already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "incorrect email or password")
	case errors.Is(err, auth.ErrAccountDeactivated):
		writeError(w, r, http.StatusUnauthorized, "account_deactivated", "account is deactivated")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, r, http.StatusUnauthorized, "token_revoked", "token has been revoked")
	case errors.Is(err, auth.ErrTokenMalformed):
		writeError(w, r, http.StatusUnauthorized, "token_malformed", "token is not valid")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusTooManyRequests, "account_locked", "too many failed attempts, try again later")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	default:
		obs.Log("error", "internal_error", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
	}
}
