package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	httpmiddleware "github.com/cernio/cernio/internal/http"
	"github.com/cernio/cernio/internal/logger"
	"github.com/cernio/cernio/internal/ratelimit"
	"github.com/cernio/cernio/internal/server"
	"github.com/cernio/cernio/internal/telemetry"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ServerCmd struct {
	// Server configuration
	Listen      string `help:"HTTP server listen address" default:"0.0.0.0:3001" env:"CERNIO_LISTEN"`
	Cert        string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"CERNIO_TLS_CERT"`
	Key         string `help:"path to TLS key file" default:"" env:"CERNIO_TLS_KEY"`
	Environment string `help:"deployment environment reported by the health check" default:"development" env:"CERNIO_ENV"`

	// CORS configuration
	CORSOrigins []string `help:"allowed browser origins for API requests" default:"http://localhost:5173" env:"FRONTEND_URL"`

	// Rate limiting of the credential endpoints
	RateLimit         int           `help:"requests per client per window on register, login and refresh (0 disables)" default:"20" env:"CERNIO_RATE_LIMIT"`
	RateLimitWindow   time.Duration `help:"rate limit window" default:"1m" env:"CERNIO_RATE_LIMIT_WINDOW"`
	RateLimitRedisURL string        `help:"Redis URL for a rate limit shared between instances" default:"" env:"CERNIO_RATE_LIMIT_REDIS_URL"`

	// Proxies whose X-Forwarded-For and X-Real-IP headers identify the client
	TrustedProxies []string `help:"IP addresses or CIDR ranges of reverse proxies allowed to set forwarding headers" env:"CERNIO_TRUSTED_PROXIES"`

	// Development and operational modes
	Tracing     bool    `help:"enable tracing" default:"false" env:"CERNIO_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"CERNIO_TRACE_SAMPLE_RATIO"`

	Store  StoreFlags `embed:""`
	Tokens TokenFlags `embed:"" prefix:"jwt-"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(log.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "cernio-api",
			Version:     globals.Version,
			Environment: c.Environment,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	operators, customers, err := stores.authorities(c.Tokens)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := c.limiter(ctx)
	if err != nil {
		return err
	}
	defer closeLimiter()

	srv, err := server.NewServer(server.Config{
		Operators:   operators,
		Customers:   customers,
		Limiter:     limiter,
		Version:     globals.Version,
		Environment: c.Environment,
	})
	if err != nil {
		return err
	}

	handler, err := c.wrap(srv.Handler(), log)
	if err != nil {
		return err
	}

	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

// wrap applies the cross-cutting middleware. Browser requests from the configured
// frontend origins pass the cross-origin check; other cross-site writes are rejected.
// Forwarding headers only identify the client when the peer is a trusted proxy.
func (c *ServerCmd) wrap(handler http.Handler, log zerolog.Logger) (http.Handler, error) {
	trusted, err := httpmiddleware.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if len(trusted) == 0 {
		log.Info().Msg("No trusted proxies configured, forwarding headers are ignored")
	}

	protection := csrf.New()
	for _, origin := range c.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid frontend origin %q: %w", origin, err)
		}
	}

	handler = protection.Handler(handler)
	handler = withCORS(c.CORSOrigins, handler)
	handler = gzhttp.GzipHandler(handler)
	handler = logger.Requests(log)(handler)
	handler = httpmiddleware.ClientIPMiddleware(trusted)(handler)

	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "cernio-api")
	}

	return handler, nil
}

// limiter builds the credential endpoint rate limiter. It is shared through Redis when
// a URL is configured and held in memory otherwise.
func (c *ServerCmd) limiter(ctx context.Context) (ratelimit.Limiter, func(), error) {
	log := zerolog.Ctx(ctx)

	if c.RateLimit <= 0 {
		log.Warn().Msg("Rate limiting is disabled")
		return nil, func() {}, nil
	}

	if c.RateLimitRedisURL != "" {
		limiter, err := ratelimit.NewRedisLimiter(ctx, c.RateLimitRedisURL, c.RateLimit, c.RateLimitWindow)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect rate limit store: %w", err)
		}
		log.Info().Int("limit", c.RateLimit).Dur("window", c.RateLimitWindow).Msg("Using Redis rate limiter")
		return limiter, func() { _ = limiter.Close() }, nil
	}

	limiter := ratelimit.NewMemoryLimiter(c.RateLimit, c.RateLimitWindow)
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.RateLimitWindow)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				limiter.Sweep()
			}
		}
	}()

	log.Info().Int("limit", c.RateLimit).Dur("window", c.RateLimitWindow).Msg("Using in-memory rate limiter")
	return limiter, cancel, nil
}

// withCORS allows the frontend origins to call the API with bearer tokens.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return middleware.Handler(h)
}
