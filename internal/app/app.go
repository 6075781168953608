package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat/internal/auth"
	"github.com/vovakirdan/pairchat/internal/config"
	"github.com/vovakirdan/pairchat/internal/core"
	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/presence"
	"github.com/vovakirdan/pairchat/internal/store"
	"github.com/vovakirdan/pairchat/internal/store/postgres"
	"github.com/vovakirdan/pairchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/pairchat/internal/transport/http"
)

// App wires together storage, the broadcast fabric, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	fabric          fabric.Fabric
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	pres, err := a.initBroker(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	logger.Info().Str("broker", cfg.Broker).Msg("broker initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)
	gate := auth.NewGate(authService, st)

	hub := core.NewHub(st, a.fabric, pres, gate, logger)
	a.server = transporthttp.NewServer(hub, authService, gate, st, cfg, logger)

	return a, nil
}

// OpenStore opens the database selected by cfg.DatabaseDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite, "":
		return sqlite.New(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// initBroker sets a.fabric and returns the presence store that goes with it.
func (a *App) initBroker(ctx context.Context, cfg *config.Config) (presence.Store, error) {
	switch cfg.Broker {
	case config.BrokerRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.redis = client
		a.fabric = fabric.NewRedis(client, a.log)
		return presence.NewRedis(client), nil
	case config.BrokerMemory, "":
		a.fabric = fabric.NewHub()
		return presence.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting pairchat server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Close releases resources without running the server.
func (a *App) Close() {
	a.cleanup()
}

// cleanup closes the fabric, redis and the store, in that order.
func (a *App) cleanup() {
	if a.fabric != nil {
		if err := a.fabric.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fabric")
		}
		a.fabric = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
		a.redis = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
		a.store = nil
	}
}
