package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	httpmiddleware "github.com/cernio/cernio/internal/http"
	"github.com/cernio/cernio/internal/models"
	"github.com/cernio/cernio/internal/store"
	"github.com/cernio/cernio/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultSessionTTL is how long a refresh-token session stays valid in the store,
	// independent of the refresh JWT's own expiry.
	DefaultSessionTTL = 30 * 24 * time.Hour

	// LogoutMessage is returned by every logout, whether or not a session was removed.
	LogoutMessage = "Logged out successfully"

	tracerName = "github.com/cernio/cernio/internal/auth"
)

// Stores groups the persistence dependencies of an Authority.
type Stores struct {
	Principals store.PrincipalStore
	Sessions   store.SessionStore
	Tenants    store.TenantStore // Required for kinds that register a tenant
}

// Registration holds the input of Register.
type Registration struct {
	TenantName string // Required for operators, ignored otherwise
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Phone      *string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User *models.Principal `json:"user"`
	TokenPair
}

// Message is a plain acknowledgement payload.
type Message struct {
	Message string `json:"message"`
}

// Authority verifies credentials, issues token pairs and manages the refresh-token
// session lifecycle for one principal kind. It keeps no session state of its own:
// every check goes to the session store.
type Authority struct {
	kind       models.Kind
	stores     Stores
	tokens     *TokenIssuer
	hasher     *Hasher
	sessionTTL time.Duration

	now    func() time.Time
	tracer trace.Tracer
}

// NewAuthority creates an Authority for the given principal kind.
func NewAuthority(kind models.Kind, stores Stores, tokens *TokenIssuer, hasher *Hasher, sessionTTL time.Duration) (*Authority, error) {
	if stores.Principals == nil || stores.Sessions == nil {
		return nil, errors.New("principal and session stores are required")
	}
	if stores.Principals.Kind() != kind {
		return nil, fmt.Errorf("principal store serves %q, not %q", stores.Principals.Kind(), kind)
	}
	if kind.RequiresTenant() && stores.Tenants == nil {
		return nil, fmt.Errorf("tenant store is required for %s principals", kind)
	}
	if tokens == nil || hasher == nil {
		return nil, errors.New("token issuer and password hasher are required")
	}
	if sessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}

	return &Authority{
		kind:       kind,
		stores:     stores,
		tokens:     tokens,
		hasher:     hasher,
		sessionTTL: sessionTTL,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Kind returns the principal kind this authority serves.
func (a *Authority) Kind() models.Kind {
	return a.kind
}

// Register creates a principal, plus its tenant for operators, and signs it in.
// Returns ErrEmailTaken if the email is already registered.
func (a *Authority) Register(ctx context.Context, reg Registration) (result *AuthResult, err error) {
	ctx, done := a.begin(ctx, "register")
	defer func() { done(err) }()

	if a.kind.RequiresTenant() && strings.TrimSpace(reg.TenantName) == "" {
		return nil, ErrTenantRequired
	}
	if err := validatePassword(reg.Password); err != nil {
		return nil, err
	}

	taken, err := a.stores.Principals.EmailExists(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	passwordHash, err := a.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principalID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate principal ID: %w", err)
	}

	now := a.now()
	principal := &models.Principal{
		PrincipalID:  principalID,
		Kind:         a.kind,
		Email:        reg.Email,
		PasswordHash: passwordHash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Phone:        reg.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var tenant *models.Tenant
	if a.kind.RequiresTenant() {
		tenantID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate tenant ID: %w", err)
		}
		tenant = &models.Tenant{
			TenantID:  tenantID,
			Name:      strings.TrimSpace(reg.TenantName),
			CreatedAt: now,
			UpdatedAt: now,
		}
		principal.TenantID = &tenantID
		principal.Role = models.RoleCompanyAdmin
	}

	if err := a.stores.Principals.Register(ctx, principal, tenant); err != nil {
		// Lost a race with a concurrent registration of the same email
		if errors.Is(err, store.ErrPrincipalAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register principal: %w", err)
	}
	principal.Tenant = tenant

	zerolog.Ctx(ctx).Info().
		Str("principal_id", principal.PrincipalID.String()).
		Str("kind", a.kind.String()).
		Msg("Registered principal")

	pair, err := a.issue(ctx, principal)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: principal, TokenPair: pair}, nil
}

// Login verifies an email and password and signs the principal in.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// Inactive accounts return ErrAccountDeactivated.
func (a *Authority) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, done := a.begin(ctx, "login")
	defer func() { done(err) }()

	principal, err := a.stores.Principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			a.hasher.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if !principal.IsActive {
		return nil, ErrAccountDeactivated
	}

	if err := a.hasher.Compare(principal.PasswordHash, password); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("principal_id", principal.PrincipalID.String()).
				Msg("Stored password hash is unusable")
		}
		return nil, ErrInvalidCredentials
	}

	if err := a.attachTenant(ctx, principal); err != nil {
		return nil, err
	}

	pair, err := a.issue(ctx, principal)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: principal, TokenPair: pair}, nil
}

// RefreshTokens redeems a refresh token for a new token pair. The presented token's
// session is consumed, so each refresh token works at most once. Every failure,
// including infrastructure errors, is reported as ErrInvalidRefreshToken.
func (a *Authority) RefreshTokens(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	ctx, done := a.begin(ctx, "refresh")
	defer func() { done(err) }()

	claims, err := a.tokens.VerifyRefresh(refreshToken, a.kind)
	if err != nil {
		return nil, a.rejectRefresh(ctx, "token verification failed", err)
	}

	session, err := a.stores.Sessions.Consume(ctx, refreshToken)
	if err != nil {
		return nil, a.rejectRefresh(ctx, "session not found", err)
	}
	telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, 1, a.attrs("rotated"))

	if session.ExpiredAt(a.now()) {
		return nil, a.rejectRefresh(ctx, "session expired", nil)
	}

	if session.PrincipalID.String() != claims.Subject {
		return nil, a.rejectRefresh(ctx, "session subject mismatch", nil)
	}

	principal, err := a.stores.Principals.Get(ctx, session.PrincipalID)
	if err != nil {
		return nil, a.rejectRefresh(ctx, "principal lookup failed", err)
	}
	if !principal.IsActive {
		return nil, a.rejectRefresh(ctx, "principal is inactive", nil)
	}

	next, err := a.issue(ctx, principal)
	if err != nil {
		return nil, a.rejectRefresh(ctx, "issuing tokens failed", err)
	}

	return &next, nil
}

// Logout removes the session holding the refresh token. It succeeds whether or not
// such a session exists; only a store failure is returned as an error.
func (a *Authority) Logout(ctx context.Context, refreshToken string) (msg *Message, err error) {
	ctx, done := a.begin(ctx, "logout")
	defer func() { done(err) }()

	count, err := a.stores.Sessions.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}

	if count > 0 {
		telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, int64(count), a.attrs("logout"))
	}

	zerolog.Ctx(ctx).Debug().Int("count", count).Str("kind", a.kind.String()).Msg("Logout")

	return &Message{Message: LogoutMessage}, nil
}

// ValidateByID returns the active principal with this ID, or nil if it does not exist
// or has been deactivated.
func (a *Authority) ValidateByID(ctx context.Context, principalID uuid.UUID) (principal *models.Principal, err error) {
	ctx, done := a.begin(ctx, "validate")
	defer func() { done(err) }()

	principal, err = a.stores.Principals.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if !principal.IsActive {
		return nil, nil
	}

	if err := a.attachTenant(ctx, principal); err != nil {
		return nil, err
	}

	return principal, nil
}

// IsEmailAvailable reports whether no principal of this kind uses the email.
func (a *Authority) IsEmailAvailable(ctx context.Context, email string) (available bool, err error) {
	ctx, done := a.begin(ctx, "check_email")
	defer func() { done(err) }()

	exists, err := a.stores.Principals.EmailExists(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return !exists, nil
}

// SetActive activates or deactivates a principal. Deactivation also revokes every
// session the principal holds.
func (a *Authority) SetActive(ctx context.Context, principalID uuid.UUID, active bool) (err error) {
	ctx, done := a.begin(ctx, "set_active")
	defer func() { done(err) }()

	if err := a.stores.Principals.SetActive(ctx, principalID, active); err != nil {
		return fmt.Errorf("failed to update principal: %w", err)
	}

	if active {
		return nil
	}

	count, err := a.stores.Sessions.DeleteByPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if count > 0 {
		telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, int64(count), a.attrs("deactivated"))
	}

	return nil
}

// PruneExpired deletes sessions whose expiry has passed and returns how many were removed.
func (a *Authority) PruneExpired(ctx context.Context) (count int, err error) {
	ctx, done := a.begin(ctx, "prune")
	defer func() { done(err) }()

	count, err = a.stores.Sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if count > 0 {
		telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, int64(count), a.attrs("expired"))
	}

	return count, nil
}

// issue signs a token pair and stores the refresh token's session.
func (a *Authority) issue(ctx context.Context, principal *models.Principal) (TokenPair, error) {
	pair, err := a.tokens.Issue(principal)
	if err != nil {
		return TokenPair{}, err
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate session ID: %w", err)
	}

	ip := httpmiddleware.ClientIPFromContext(ctx)
	if net.ParseIP(ip) == nil {
		ip = ""
	}

	now := a.now()
	session := &models.Session{
		SessionID:    sessionID,
		PrincipalID:  principal.PrincipalID,
		RefreshToken: pair.RefreshToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.sessionTTL),
		UserAgent:    httpmiddleware.UserAgentFromContext(ctx),
		IPAddress:    ip,
	}

	if err := a.stores.Sessions.Create(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("failed to create session: %w", err)
	}

	telemetry.GetMetrics().SessionsIssuedTotal.Add(ctx, 1, a.attrs(""))

	return pair, nil
}

// attachTenant loads the tenant of an operator principal for the response payload.
func (a *Authority) attachTenant(ctx context.Context, principal *models.Principal) error {
	if principal.TenantID == nil || a.stores.Tenants == nil {
		return nil
	}

	tenant, err := a.stores.Tenants.Get(ctx, *principal.TenantID)
	if err != nil {
		return fmt.Errorf("failed to get tenant: %w", err)
	}
	principal.Tenant = tenant

	return nil
}

func (a *Authority) rejectRefresh(ctx context.Context, reason string, cause error) error {
	zerolog.Ctx(ctx).Debug().Err(cause).
		Str("kind", a.kind.String()).
		Str("reason", reason).
		Msg("Refresh token rejected")
	return ErrInvalidRefreshToken
}

// begin starts a span for an operation and returns a function that records its outcome.
func (a *Authority) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "auth."+operation,
		trace.WithAttributes(attribute.String("principal.kind", a.kind.String())))

	return ctx, func(err error) {
		outcome := outcomeOf(err)
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		span.End()

		attrs := metric.WithAttributes(
			attribute.String("kind", a.kind.String()),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		)
		m := telemetry.GetMetrics()
		m.AuthOperationsTotal.Add(ctx, 1, attrs)
		m.AuthOperationDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	}
}

func (a *Authority) attrs(reason string) metric.AddOption {
	if reason == "" {
		return metric.WithAttributes(attribute.String("kind", a.kind.String()))
	}
	return metric.WithAttributes(
		attribute.String("kind", a.kind.String()),
		attribute.String("reason", reason),
	)
}

// outcomeOf classifies an operation error for metrics. Expected rejections are
// reported by name so that they are not counted as failures.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDeactivated):
		return "deactivated"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrTenantRequired), errors.Is(err, ErrInvalidPassword):
		return "invalid_input"
	default:
		return "error"
	}
}
