package auth

import "errors"

// Sentinel errors returned by Authority operations. Every failure of an operation
// is one of these or a wrapped infrastructure error.
var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTenantRequired      = errors.New("tenant name is required")
	ErrInvalidPassword     = errors.New("password must be between 8 and 72 bytes")
	ErrUnauthorized        = errors.New("unauthorized")
)
