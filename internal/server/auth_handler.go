package server

import (
	"net/http"
	"strings"

	"github.com/cernio/cernio/internal/auth"
	"github.com/go-playground/validator/v10"
)

// AuthHandler serves the authentication routes of one principal kind.
type AuthHandler struct {
	authority *auth.Authority
	validate  *validator.Validate
}

// NewAuthHandler creates a handler backed by the given authority.
func NewAuthHandler(authority *auth.Authority) *AuthHandler {
	return &AuthHandler{
		authority: authority,
		validate:  newValidator(),
	}
}

// CheckEmail reports whether the email in the query string can still be registered.
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	req := checkEmailRequest{Email: strings.TrimSpace(r.URL.Query().Get("email"))}
	if err := validate(h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	available, err := h.authority.IsEmailAvailable(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{Available: available})
}

// Register creates a principal and responds with it and a token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.decodeRegistration(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authority.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *AuthHandler) decodeRegistration(w http.ResponseWriter, r *http.Request) (auth.Registration, error) {
	if h.authority.Kind().RequiresTenant() {
		var req operatorRegisterRequest
		if err := decode(w, r, h.validate, &req); err != nil {
			return auth.Registration{}, err
		}
		return auth.Registration{
			TenantName: req.CompanyName,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Password:   req.Password,
		}, nil
	}

	var req marketplaceRegisterRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		return auth.Registration{}, err
	}
	return auth.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
	}, nil
}

// Login verifies credentials and responds with the principal and a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.authority.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.authority.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout ends the session holding the refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.authority.Logout(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Me responds with the principal authenticated by the access-token middleware.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, auth.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, principal)
}
