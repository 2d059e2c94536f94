package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/cernio/cernio/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultIssuer     = "cernio"

	minSecretLength = 32
)

var errTokenKind = errors.New("token was issued for another principal kind")

// Claims are the JWT claims carried by both access and refresh tokens.
// The subject is the principal ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Kind  models.Kind `json:"kind"`
}

// TokenPair is the result of a successful login, registration or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenConfig configures token signing. Access and refresh tokens use different
// secrets so one can never be presented as the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *TokenConfig) ApplyDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
}

// Validate checks that the configuration is valid.
func (c *TokenConfig) Validate() error {
	if len(c.AccessSecret) < minSecretLength {
		return fmt.Errorf("access token secret must be at least %d bytes", minSecretLength)
	}
	if len(c.RefreshSecret) < minSecretLength {
		return fmt.Errorf("refresh token secret must be at least %d bytes", minSecretLength)
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessTTL < 0 || c.RefreshTTL < 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer creates a token issuer, applying defaults before validation.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// Issue signs a new access and refresh token for the principal.
// Every token gets a unique ID so two pairs minted in the same second differ.
func (i *TokenIssuer) Issue(principal *models.Principal) (TokenPair, error) {
	access, err := i.sign(principal, i.cfg.AccessSecret, i.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := i.sign(principal, i.cfg.RefreshSecret, i.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token for the given principal kind.
func (i *TokenIssuer) VerifyAccess(token string, kind models.Kind) (*Claims, error) {
	return i.verify(token, i.cfg.AccessSecret, kind)
}

// VerifyRefresh validates a refresh token for the given principal kind.
func (i *TokenIssuer) VerifyRefresh(token string, kind models.Kind) (*Claims, error) {
	return i.verify(token, i.cfg.RefreshSecret, kind)
}

func (i *TokenIssuer) sign(principal *models.Principal, secret []byte, ttl time.Duration) (string, error) {
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   principal.PrincipalID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    i.cfg.Issuer,
		},
		Email: principal.Email,
		Kind:  principal.Kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (i *TokenIssuer) verify(tokenString string, secret []byte, kind models.Kind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Kind != kind {
		return nil, errTokenKind
	}

	return claims, nil
}
