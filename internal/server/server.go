package server

import (
	"errors"
	"net/http"

	"github.com/cernio/cernio/internal/auth"
	"github.com/cernio/cernio/internal/ratelimit"
)

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/v1"

// Config describes the API server.
type Config struct {
	Operators   *auth.Authority
	Customers   *auth.Authority
	Limiter     ratelimit.Limiter // Optional, limits the credential endpoints
	Version     string
	Environment string
}

// Server exposes the operator and marketplace authorities over HTTP.
type Server struct {
	cfg       Config
	operators *AuthHandler
	customers *AuthHandler
}

// NewServer creates a new server for both principal kinds.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Operators == nil || cfg.Customers == nil {
		return nil, errors.New("operator and marketplace authorities are required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	return &Server{
		cfg:       cfg,
		operators: NewAuthHandler(cfg.Operators),
		customers: NewAuthHandler(cfg.Customers),
	}, nil
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET "+APIPrefix+"/health", s.health)
	mux.HandleFunc("GET /health", s.health)

	s.routes(mux, APIPrefix+"/auth", s.operators, true)
	s.routes(mux, APIPrefix+"/marketplace-auth", s.customers, false)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})

	return mux
}

// routes registers the authentication routes of one kind under prefix. Operator
// logout requires an access token; marketplace logout only needs the refresh token.
func (s *Server) routes(mux *http.ServeMux, prefix string, h *AuthHandler, authenticatedLogout bool) {
	requireAuth := h.authority.Middleware(unauthorized)

	limit := func(next http.HandlerFunc) http.Handler { return next }
	if s.cfg.Limiter != nil {
		limiter := ratelimit.Middleware(s.cfg.Limiter, tooManyRequests)
		limit = func(next http.HandlerFunc) http.Handler { return limiter(next) }
	}

	mux.HandleFunc("GET "+prefix+"/check-email", h.CheckEmail)
	mux.Handle("POST "+prefix+"/register", limit(h.Register))
	mux.Handle("POST "+prefix+"/login", limit(h.Login))
	mux.Handle("POST "+prefix+"/refresh", limit(h.Refresh))
	mux.Handle("GET "+prefix+"/me", requireAuth(http.HandlerFunc(h.Me)))

	if authenticatedLogout {
		mux.Handle("POST "+prefix+"/logout", requireAuth(http.HandlerFunc(h.Logout)))
	} else {
		mux.HandleFunc("POST "+prefix+"/logout", h.Logout)
	}
}
