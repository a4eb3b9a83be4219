// Command api runs the identity HTTP service.
//
// @title                       Identity System API
// @version                     1.0
// @description                 Credential checks, token issuance and session revocation.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/api"
	"github.com/99minutos/identity-system/internal/api/handler"
	"github.com/99minutos/identity-system/internal/core/service"
	mongostore "github.com/99minutos/identity-system/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/identity-system/internal/infrastructure/db/redis"
	httpserver "github.com/99minutos/identity-system/internal/infrastructure/http"
	"github.com/99minutos/identity-system/internal/infrastructure/mail"
	"github.com/99minutos/identity-system/internal/infrastructure/queue"
	"github.com/99minutos/identity-system/internal/pkg/config"
	"github.com/99minutos/identity-system/internal/pkg/security"
	"github.com/99minutos/identity-system/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "identity-system",
	})
	log.Info().Str("env", cfg.Env).Msg("starting application")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mongoClient, db, err := mongostore.Connect(connectCtx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()
	log.Info().Str("db", cfg.Mongo.Database).Msg("mongo connected")

	rdb, err := redisstore.Connect(connectCtx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	users := mongostore.NewUserRepository(db)
	if err := users.EnsureIndexes(connectCtx); err != nil {
		return err
	}
	denylist := redisstore.NewRevocationStore(rdb, cfg.Redis.KeyPrefix)

	// --- Core services ---
	tokens, err := service.NewTokenService(service.TokenConfig{
		Secret:    cfg.Auth.JWTSecret,
		Algorithm: cfg.Auth.JWTAlgorithm,
	})
	if err != nil {
		return err
	}
	hasher := security.NewHasher(security.DefaultParams)

	// --- Mail outbox ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	outbox := queue.NewDispatcher(cfg.Mail.Workers, cfg.Mail.Buffer, mail.NewLogMailer(log), log)
	outbox.Start(workerCtx)
	defer func() {
		stopWorkers()
		outbox.Wait()
	}()

	authService := service.NewAuthService(users, hasher, tokens, denylist, outbox, service.FlowConfig{
		AccessTTL: cfg.Auth.AccessTokenTTL(),
		VerifyTTL: cfg.Auth.VerifyTokenTTL,
		ResetTTL:  cfg.Auth.ResetTokenTTL,
		SingleUse: cfg.Auth.SingleUseTokens,
		BaseURL:   cfg.BaseURL,
	}, log.With().Str("component", "auth").Logger())
	userService := service.NewUserService(users, hasher, tokens, denylist,
		log.With().Str("component", "users").Logger())

	// --- HTTP ---
	router := api.NewRouter(api.Deps{
		AuthService: authService,
		UserService: userService,
		Tokens:      tokens,
		Denylist:    denylist,
		Probes: map[string]handler.Probe{
			"mongodb": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Log: log,
	})

	return httpserver.NewServer(router, ":"+cfg.Port, cfg.ShutdownTimeout, log).Run(ctx)
}
