package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cernio/cernio/internal/auth"
	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/ratelimit"
	memorystore "github.com/cernio/cernio/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	server    *httptest.Server
	operators *auth.Authority
	customers *auth.Authority
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte("test-access-secret-at-least-32-bytes-long"),
		RefreshSecret: []byte("test-refresh-secret-at-least-32-bytes-long"),
	})
	require.NoError(t, err)
	hasher := auth.NewHasher(bcrypt.MinCost)

	tenants := memorystore.NewTenantStore()
	operators, err := auth.NewAuthority(models.KindOperator, auth.Stores{
		Principals: memorystore.NewPrincipalStore(models.KindOperator, tenants),
		Sessions:   memorystore.NewSessionStore(),
		Tenants:    tenants,
	}, issuer, hasher, auth.DefaultSessionTTL)
	require.NoError(t, err)

	customers, err := auth.NewAuthority(models.KindMarketplace, auth.Stores{
		Principals: memorystore.NewPrincipalStore(models.KindMarketplace, nil),
		Sessions:   memorystore.NewSessionStore(),
	}, issuer, hasher, auth.DefaultSessionTTL)
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Operators: operators,
		Customers: customers,
		Limiter:   limiter,
		Version:   "test",
	})
	require.NoError(t, err)

	testServer := httptest.NewServer(srv.Handler())
	t.Cleanup(testServer.Close)

	return &testEnv{server: testServer, operators: operators, customers: customers}
}

// do sends a request and decodes the JSON response into out when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

type authResponse struct {
	User struct {
		ID        string  `json:"id"`
		Email     string  `json:"email"`
		FirstName string  `json:"firstName"`
		Role      string  `json:"role"`
		CompanyID *string `json:"companyId"`
		Company   *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"company"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

var acme = map[string]any{
	"companyName": "Acme Demolition",
	"firstName":   "Jo",
	"lastName":    "Doe",
	"email":       "jo@acme.test",
	"password":    "correct-horse",
}

func TestOperatorAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	// Register
	var registered authResponse
	status := env.do(t, http.MethodPost, "/api/v1/auth/register", "", acme, &registered)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "jo@acme.test", registered.User.Email)
	require.Equal(t, models.RoleCompanyAdmin, registered.User.Role)
	require.NotNil(t, registered.User.CompanyID)
	require.NotNil(t, registered.User.Company)
	require.Equal(t, "Acme Demolition", registered.User.Company.Name)
	require.Equal(t, *registered.User.CompanyID, registered.User.Company.ID)
	require.NotEmpty(t, registered.AccessToken)
	require.NotEmpty(t, registered.RefreshToken)

	// Email no longer available
	var availability availabilityResponse
	status = env.do(t, http.MethodGet, "/api/v1/auth/check-email?email=jo@acme.test", "", nil, &availability)
	require.Equal(t, http.StatusOK, status)
	require.False(t, availability.Available)

	// Me
	var me map[string]any
	status = env.do(t, http.MethodGet, "/api/v1/auth/me", registered.AccessToken, nil, &me)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, registered.User.ID, me["id"])
	require.NotContains(t, me, "passwordHash")
	require.NotContains(t, me, "password")

	// Login
	var loggedIn authResponse
	status = env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "jo@acme.test", "password": "correct-horse"}, &loggedIn)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, registered.User.ID, loggedIn.User.ID)

	// Refresh rotates the token
	var pair auth.TokenPair
	status = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refreshToken": loggedIn.RefreshToken}, &pair)
	require.Equal(t, http.StatusOK, status)
	require.NotEqual(t, loggedIn.RefreshToken, pair.RefreshToken)

	var apiErr APIError
	status = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refreshToken": loggedIn.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, NewAPIError(http.StatusUnauthorized, "Invalid refresh token"), apiErr)

	// Logout needs an access token
	status = env.do(t, http.MethodPost, "/api/v1/auth/logout", "",
		map[string]string{"refreshToken": pair.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Unauthorized", apiErr.Message)

	var msg auth.Message
	for range 2 {
		status = env.do(t, http.MethodPost, "/api/v1/auth/logout", pair.AccessToken,
			map[string]string{"refreshToken": pair.RefreshToken}, &msg)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "Logged out successfully", msg.Message)
	}

	status = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refreshToken": pair.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestMarketplaceAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	var registered authResponse
	status := env.do(t, http.MethodPost, "/api/v1/marketplace-auth/register", "", map[string]any{
		"firstName": "Sam",
		"lastName":  "Buyer",
		"email":     "jo@acme.test",
		"password":  "correct-horse",
		"phone":     "+44 20 7946 0000",
	}, &registered)
	require.Equal(t, http.StatusCreated, status)
	require.Nil(t, registered.User.CompanyID)
	require.Nil(t, registered.User.Company)
	require.Empty(t, registered.User.Role)

	// The operator side does not know this principal
	var availability availabilityResponse
	status = env.do(t, http.MethodGet, "/api/v1/auth/check-email?email=jo@acme.test", "", nil, &availability)
	require.Equal(t, http.StatusOK, status)
	require.True(t, availability.Available)

	// Marketplace tokens are not accepted by operator routes
	var apiErr APIError
	status = env.do(t, http.MethodGet, "/api/v1/auth/me", registered.AccessToken, nil, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)

	status = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refreshToken": registered.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)

	// Marketplace logout works without an access token
	var msg auth.Message
	status = env.do(t, http.MethodPost, "/api/v1/marketplace-auth/logout", "",
		map[string]string{"refreshToken": registered.RefreshToken}, &msg)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, auth.LogoutMessage, msg.Message)
}

func TestRegisterErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	status := env.do(t, http.MethodPost, "/api/v1/auth/register", "", acme, nil)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name        string
		path        string
		body        any
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "duplicate email",
			path:        "/api/v1/auth/register",
			body:        acme,
			wantStatus:  http.StatusConflict,
			wantMessage: "User with this email already exists",
		},
		{
			name: "missing company",
			path: "/api/v1/auth/register",
			body: map[string]any{
				"firstName": "Jo", "lastName": "Doe", "email": "new@acme.test", "password": "correct-horse",
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "companyName should not be empty",
		},
		{
			name: "invalid email",
			path: "/api/v1/auth/register",
			body: map[string]any{
				"companyName": "X", "firstName": "Jo", "lastName": "Doe", "email": "not-an-email", "password": "correct-horse",
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "email must be an email",
		},
		{
			name: "short password",
			path: "/api/v1/auth/register",
			body: map[string]any{
				"companyName": "X", "firstName": "Jo", "lastName": "Doe", "email": "new@acme.test", "password": "short",
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "password must be longer than or equal to 8 characters",
		},
		{
			// 40 characters but 80 bytes in UTF-8
			name: "password over 72 bytes",
			path: "/api/v1/auth/register",
			body: map[string]any{
				"companyName": "X", "firstName": "Jo", "lastName": "Doe", "email": "new@acme.test",
				"password": strings.Repeat("é", 40),
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "password must be shorter than or equal to 72 bytes",
		},
		{
			name: "marketplace password over 72 bytes",
			path: "/api/v1/marketplace-auth/register",
			body: map[string]any{
				"firstName": "Sam", "lastName": "Buyer", "email": "sam@example.test",
				"password": strings.Repeat("é", 40),
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "password must be shorter than or equal to 72 bytes",
		},
		{
			name: "unknown field",
			path: "/api/v1/marketplace-auth/register",
			body: map[string]any{
				"companyName": "X", "firstName": "Jo", "lastName": "Doe", "email": "new@acme.test", "password": "correct-horse",
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "property companyName should not exist",
		},
		{
			name:        "malformed json",
			path:        "/api/v1/auth/register",
			body:        `{"email":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "request body is not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr APIError
			status := env.do(t, http.MethodPost, tt.path, "", tt.body, &apiErr)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantStatus, apiErr.StatusCode)
			require.Equal(t, http.StatusText(tt.wantStatus), apiErr.Error)
			require.Contains(t, apiErr.Message, tt.wantMessage)
		})
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	var registered authResponse
	status := env.do(t, http.MethodPost, "/api/v1/auth/register", "", acme, &registered)
	require.Equal(t, http.StatusCreated, status)

	var apiErr APIError

	status = env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "jo@acme.test", "password": "wrong-password"}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	status = env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "nobody@acme.test", "password": "correct-horse"}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	principalID := mustParseUUID(t, registered.User.ID)
	require.NoError(t, env.operators.SetActive(context.Background(), principalID, false))

	status = env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "jo@acme.test", "password": "correct-horse"}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Account is deactivated", apiErr.Message)

	// Existing access tokens stop working too
	status = env.do(t, http.MethodGet, "/api/v1/auth/me", registered.AccessToken, nil, &apiErr)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestCheckEmailValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	var apiErr APIError
	status := env.do(t, http.MethodGet, "/api/v1/marketplace-auth/check-email", "", nil, &apiErr)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "email should not be empty", apiErr.Message)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		var health healthResponse
		status := env.do(t, http.MethodGet, path, "", nil, &health)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "ok", health.Status)
		require.Equal(t, "cernio-api", health.Service)
		require.Equal(t, "test", health.Version)
		require.Equal(t, "development", health.Environment)

		_, err := time.Parse(time.RFC3339Nano, health.Timestamp)
		require.NoError(t, err)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	var apiErr APIError
	status := env.do(t, http.MethodGet, "/api/v1/projects", "", nil, &apiErr)
	require.Equal(t, http.StatusNotFound, status)
	require.True(t, strings.HasPrefix(apiErr.Message, "Cannot GET"))
}

func TestRateLimitedLogin(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(2, time.Minute))

	body := map[string]string{"email": "nobody@acme.test", "password": "correct-horse"}
	for range 2 {
		status := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body, nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	var apiErr APIError
	status := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "Too many requests", apiErr.Message)

	// Other endpoints keep their own budget
	status = env.do(t, http.MethodGet, "/api/v1/auth/check-email?email=jo@acme.test", "", nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestNewServer_RequiresAuthorities(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}
