package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cernio/cernio/internal/auth"
	"github.com/cernio/cernio/internal/models"
	memorystore "github.com/cernio/cernio/internal/store/memory"
	postgresstore "github.com/cernio/cernio/internal/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString          string        `help:"PostgreSQL connection string" env:"DATABASE_URL"`
	ConnectRetryTimeout time.Duration `help:"how long to retry connecting at startup" default:"1m" env:"CERNIO_POSTGRES_CONNECT_RETRY"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"CERNIO_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or DATABASE_URL)")
	}
	return nil
}

// connect opens the shared pool and runs migrations when auto-migrate is set.
func (s *PostgresStoreFlags) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPoolWithRetry(ctx, &postgresstore.PoolConfig{
		ConnString:          s.ConnString,
		MaxConns:            s.MaxConns,
		MinConns:            s.MinConns,
		MaxConnLifetime:     s.MaxConnLifetime,
		MaxConnIdleTime:     s.MaxConnIdleTime,
		ConnectRetryTimeout: s.ConnectRetryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if s.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		zerolog.Ctx(ctx).Info().Msg("Database migrations completed")
	}

	return pool, nil
}

// open connects to PostgreSQL and builds the stores for both principal kinds.
func (s *PostgresStoreFlags) open(ctx context.Context) (*storeSet, error) {
	pool, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	set := &storeSet{close: pool.Close}
	for _, kind := range []models.Kind{models.KindOperator, models.KindMarketplace} {
		principals, err := postgresstore.NewPrincipalStore(pool, kind)
		if err != nil {
			pool.Close()
			return nil, err
		}
		sessions, err := postgresstore.NewSessionStore(pool, kind)
		if err != nil {
			pool.Close()
			return nil, err
		}

		kindStores := auth.Stores{Principals: principals, Sessions: sessions}
		if kind.RequiresTenant() {
			kindStores.Tenants = postgresstore.NewTenantStore(pool)
			set.operators = kindStores
		} else {
			set.customers = kindStores
		}
	}

	zerolog.Ctx(ctx).Info().Msg("Using PostgreSQL stores with shared connection pool")

	return set, nil
}

type TokenFlags struct {
	Secret        string        `help:"HMAC secret for access tokens (at least 32 bytes)" env:"JWT_SECRET"`
	RefreshSecret string        `help:"HMAC secret for refresh tokens (at least 32 bytes)" env:"JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `help:"access token lifetime" default:"15m" env:"JWT_EXPIRES_IN"`
	RefreshTTL    time.Duration `help:"refresh token lifetime" default:"720h" env:"JWT_REFRESH_EXPIRES_IN"`
	SessionTTL    time.Duration `help:"how long a refresh session stays valid in the store" default:"720h" env:"CERNIO_SESSION_TTL"`
	BcryptCost    int           `help:"bcrypt cost for new password hashes" default:"10" env:"CERNIO_BCRYPT_COST"`
}

// StoreFlags selects and configures the persistence backend shared by both principal kinds.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"CERNIO_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

// storeSet holds the per-kind store sets and releases them on close.
type storeSet struct {
	operators auth.Stores
	customers auth.Stores
	close     func()
}

func (s *StoreFlags) open(ctx context.Context) (*storeSet, error) {
	log := zerolog.Ctx(ctx)

	if s.StoreType != "postgres" {
		tenants := memorystore.NewTenantStore()
		log.Info().Msg("Using in-memory identity stores")
		return &storeSet{
			operators: auth.Stores{
				Principals: memorystore.NewPrincipalStore(models.KindOperator, tenants),
				Sessions:   memorystore.NewSessionStore(),
				Tenants:    tenants,
			},
			customers: auth.Stores{
				Principals: memorystore.NewPrincipalStore(models.KindMarketplace, nil),
				Sessions:   memorystore.NewSessionStore(),
			},
			close: func() {},
		}, nil
	}

	return s.PostgresStore.open(ctx)
}

// authorities builds one authority per principal kind over the opened stores.
func (s *storeSet) authorities(flags TokenFlags) (operators, customers *auth.Authority, err error) {
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte(flags.Secret),
		RefreshSecret: []byte(flags.RefreshSecret),
		AccessTTL:     flags.AccessTTL,
		RefreshTTL:    flags.RefreshTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid token configuration (JWT_SECRET, JWT_REFRESH_SECRET): %w", err)
	}
	hasher := auth.NewHasher(flags.BcryptCost)

	operators, err = auth.NewAuthority(models.KindOperator, s.operators, issuer, hasher, flags.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create operator authority: %w", err)
	}

	customers, err = auth.NewAuthority(models.KindMarketplace, s.customers, issuer, hasher, flags.SessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create marketplace authority: %w", err)
	}

	return operators, customers, nil
}

func authorityFor(kind string, operators, customers *auth.Authority) *auth.Authority {
	if models.Kind(kind) == models.KindMarketplace {
		return customers
	}
	return operators
}
