package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiremsg-server/internal/auth"
	"github.com/vovakirdan/wiremsg-server/internal/config"
	"github.com/vovakirdan/wiremsg-server/internal/core"
	"github.com/vovakirdan/wiremsg-server/internal/service/contacts"
	"github.com/vovakirdan/wiremsg-server/internal/service/groups"
	"github.com/vovakirdan/wiremsg-server/internal/service/messaging"
	"github.com/vovakirdan/wiremsg-server/internal/store"
	"github.com/vovakirdan/wiremsg-server/internal/store/postgres"
	"github.com/vovakirdan/wiremsg-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wiremsg-server/internal/transport/http"
)

// App wires together storage, delivery and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	router          *core.Router
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := core.NewRegistry()
	metrics := core.NewMetrics(promReg, registry)

	roster, err := core.NewCachedRoster(st, cfg.RosterCacheSize, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	router := core.NewRouter(registry, roster, core.RouterOptions{
		Workers: cfg.NotifyWorkers,
		Backlog: cfg.NotifyBacklog,
	}, metrics, logger)

	groupService := groups.New(st, roster)
	services := transporthttp.Services{
		Auth:      authService,
		Contacts:  contacts.New(st),
		Groups:    groupService,
		Messaging: messaging.New(st, groupService, router, cfg.MaxMessageBytes, logger),
		Registry:  registry,
		Gatherer:  promReg,
	}

	return &App{
		server:          transporthttp.NewServer(services, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		router:          router,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// Run starts the notify workers and the HTTP server and blocks until ctx is cancelled
// or either of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.router.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
