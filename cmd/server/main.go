// @title           User Access API
// @version         1.0
// @description     Role-gated user lookup and deletion backed by an external identity provider.
// @BasePath        /api
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sflow/user-access/internal/api"
	"github.com/sflow/user-access/internal/core/ports"
	"github.com/sflow/user-access/internal/core/service"
	"github.com/sflow/user-access/internal/infrastructure/db/memory"
	mongodb "github.com/sflow/user-access/internal/infrastructure/db/mongo"
	"github.com/sflow/user-access/internal/infrastructure/db/postgres"
	redisdb "github.com/sflow/user-access/internal/infrastructure/db/redis"
	"github.com/sflow/user-access/internal/infrastructure/http/handlers"
	"github.com/sflow/user-access/internal/infrastructure/identity/jwtauth"
	"github.com/sflow/user-access/internal/infrastructure/identity/oidc"
	"github.com/sflow/user-access/internal/infrastructure/queue"
	"github.com/sflow/user-access/internal/pkg/config"
	"github.com/sflow/user-access/pkg/logger"
)

const (
	serviceName     = "user-access"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	readiness := map[string]handlers.Pinger{}

	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	readiness["store"] = repo

	provider, closeProvider, err := openIdentityProvider(ctx, cfg, readiness)
	if err != nil {
		return err
	}
	defer closeProvider()

	reconciler := queue.NewReconciler(provider, queue.Options{
		Workers:        cfg.Reconciler.Workers,
		MaxAttempts:    cfg.Reconciler.MaxAttempts,
		MaxElapsed:     cfg.Reconciler.MaxElapsed,
		AttemptTimeout: cfg.Identity.ExternalCallTimeout,
	}, logger.Component("reconciler"))

	e := api.NewRouter(api.Dependencies{
		Authenticator: service.NewAuthService(provider, repo, logger.Component("auth")),
		Users:         service.NewUserService(repo, provider, reconciler, cfg.Identity.ExternalCallTimeout, logger.Component("users")),
		Readiness:     readiness,
		Logger:        logger.Component("http"),
	})

	g, gctx := errgroup.WithContext(ctx)

	// The reconciler outlives the HTTP server: in-flight DELETEs may still
	// enqueue retries while Shutdown drains them.
	reconcileCtx, stopReconciler := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReconciler()

	g.Go(func() error {
		return reconciler.Run(reconcileCtx)
	})

	g.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("identity", cfg.Identity.Driver).
			Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		stopReconciler()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

type store interface {
	ports.UserRepository
	handlers.Pinger
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		repo, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case config.StoreMongo:
		st, err := mongodb.Open(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  serviceName,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := st.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect failed")
			}
		}
		return st.Users, closeFn, nil

	default:
		log.Warn().Msg("using in-memory user store, data is lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	}
}

func openIdentityProvider(ctx context.Context, cfg *config.Config, readiness map[string]handlers.Pinger) (ports.IdentityProvider, func(), error) {
	id := cfg.Identity

	switch id.Driver {
	case config.IdentityOIDC:
		provider, err := oidc.New(ctx, oidc.Config{
			IssuerURL:         id.OIDCIssuerURL,
			ClientID:          id.OIDCClientID,
			AdminURL:          id.OIDCAdminURL,
			Realm:             id.OIDCRealm,
			AdminClientID:     id.OIDCAdminClientID,
			AdminClientSecret: id.OIDCAdminClientSecret,
		})
		if err != nil {
			return nil, nil, err
		}
		return provider, func() {}, nil

	default:
		rdb, err := redisdb.Connect(ctx, redisdb.Config{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		readiness["redis"] = handlers.PingFunc(redisdb.Ping(rdb))

		provider, err := jwtauth.New(jwtauth.Config{
			Secret:   id.JWTSecret,
			Issuer:   id.JWTIssuer,
			Audience: id.JWTAudience,
		}, redisdb.NewSubjectRevocations(rdb, id.RevocationTTL))
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return provider, func() { _ = rdb.Close() }, nil
	}
}
