package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cernio/cernio/internal/auth"
	"github.com/rs/zerolog"
)

// APIError is the JSON body of every error response.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// NewAPIError builds an error body whose error field is the status text.
func NewAPIError(status int, message string) APIError {
	return APIError{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	}
}

// errorFor maps an authority or request error to the response sent to the client.
// Anything unrecognised is an internal error and its detail is not exposed.
func errorFor(err error) (APIError, bool) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return NewAPIError(http.StatusBadRequest, verr.Error()), true
	case errors.Is(err, auth.ErrEmailTaken):
		return NewAPIError(http.StatusConflict, "User with this email already exists"), true
	case errors.Is(err, auth.ErrInvalidCredentials):
		return NewAPIError(http.StatusUnauthorized, "Invalid credentials"), true
	case errors.Is(err, auth.ErrAccountDeactivated):
		return NewAPIError(http.StatusUnauthorized, "Account is deactivated"), true
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return NewAPIError(http.StatusUnauthorized, "Invalid refresh token"), true
	case errors.Is(err, auth.ErrUnauthorized):
		return NewAPIError(http.StatusUnauthorized, "Unauthorized"), true
	case errors.Is(err, auth.ErrTenantRequired):
		return NewAPIError(http.StatusBadRequest, "companyName should not be empty"), true
	case errors.Is(err, auth.ErrInvalidPassword):
		return NewAPIError(http.StatusBadRequest, "password must be between 8 and 72 bytes"), true
	default:
		return NewAPIError(http.StatusInternalServerError, "Internal server error"), false
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, known := errorFor(err)
	if !known {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, apiErr.StatusCode, apiErr)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, NewAPIError(status, message))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// unauthorized is the rejection handler for the access-token middleware.
func unauthorized(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusUnauthorized, "Unauthorized")
}

// tooManyRequests is the rejection handler for the rate limiter.
func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	writeStatus(w, http.StatusTooManyRequests, "Too many requests")
}
