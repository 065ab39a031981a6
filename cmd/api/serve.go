package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sessionauth/sessionauth-go/internal/config"
	"github.com/sessionauth/sessionauth-go/internal/crypto"
	"github.com/sessionauth/sessionauth-go/internal/gql"
	"github.com/sessionauth/sessionauth-go/internal/handler"
	"github.com/sessionauth/sessionauth-go/internal/logging"
	"github.com/sessionauth/sessionauth-go/internal/middleware"
	"github.com/sessionauth/sessionauth-go/internal/observability"
	"github.com/sessionauth/sessionauth-go/internal/repository"
	"github.com/sessionauth/sessionauth-go/internal/repository/postgres"
	"github.com/sessionauth/sessionauth-go/internal/service"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations at startup")

	return cmd
}

// stores are the storage backends selected by DATABASE_DRIVER.
type stores struct {
	users    service.UserStore
	sessions session.Store
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.DatabaseDriver {
	case repository.DriverMySQL:
		db, err := repository.NewDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:    repository.NewUserRepository(db),
			sessions: repository.NewSessionRepository(db),
			close:    func() { db.Close() },
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:    postgres.NewUserRepository(pool),
			sessions: postgres.NewSessionRepository(pool),
			close:    pool.Close,
		}, nil
	}
}

func runServe(ctx context.Context, skipMigrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.SetDefault("sessionauth", version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !skipMigrate {
		if err := withMigrator(func(m migrator) error { return m.Up() }); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.DatabaseDriver)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	registry := observability.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sessions := session.NewManager(st.sessions, cfg.SessionTTL)
	sessions.OnSweep(metrics.RecordSwept)

	authService := service.NewAuthService(st.users, sessions, crypto.NewArgon2idHasher(), metrics)

	router, err := newRouter(cfg, logger, authService, registry)
	if err != nil {
		return err
	}

	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "driver", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").With("port", cfg.Port).Wrap(err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SERVER_SHUTDOWN_FAILED").Wrap(err)
	}

	logger.Info("server stopped")
	return nil
}

// authService is what the HTTP and GraphQL layers need from the service.
type authService interface {
	handler.Authenticator
	gql.Authenticator
}

func newRouter(cfg config.Config, logger *slog.Logger, svc authService, registry *prometheus.Registry) (http.Handler, error) {
	schema, err := gql.NewSchema(svc, logger)
	if err != nil {
		return nil, oops.Code("GRAPHQL_SCHEMA_FAILED").Wrap(err)
	}
	authHandler := handler.NewAuthHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", observability.Handler(registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(cfg.SessionSecret, cfg.IsProduction()))

		r.Method(http.MethodPost, "/graphql", gql.NewHandler(schema))

		r.Get("/api/v1/auth/me", authHandler.HandleMe)
		r.Post("/api/v1/auth/register", authHandler.HandleRegister)
		r.Post("/api/v1/auth/login", authHandler.HandleLogin)
		r.Post("/api/v1/auth/logout", authHandler.HandleLogout)
	})

	return r, nil
}
