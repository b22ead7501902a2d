// Package server wires configuration, storage, services and transports into
// a runnable application and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/wadai/internal/cryptox"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/config"
	"github.com/dmitrijs2005/wadai/internal/server/httpapi"
	"github.com/dmitrijs2005/wadai/internal/server/mailer"
	"github.com/dmitrijs2005/wadai/internal/server/ratelimit"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wadai/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/wadai/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	rm           repomanager.RepositoryManager
	redis        *redis.Client
	tokens       *services.TokenService
	verification *services.VerificationService
	users        *services.UserService
	verifier     *auth.TokenVerifier
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	rm, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, rm: rm}

	var limiter ratelimit.Limiter
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "redis unreachable, login throttling fails open until it recovers", "addr", c.RedisAddr, "error", err)
		}
		limiter = ratelimit.NewRedisLimiter(app.redis, c.LoginMaxAttempts, c.LoginCooldown)
	} else {
		limiter = ratelimit.NewMemoryLimiter(c.LoginMaxAttempts, c.LoginCooldown)
	}

	secret := []byte(c.SecretKey)
	issuer := auth.NewTokenIssuer(secret, c.Issuer, c.AccessTokenValidityDuration)
	app.verifier = auth.NewTokenVerifier(secret, c.Issuer)

	app.tokens = services.NewTokenService(rm, issuer, c.RefreshTokenValidityDuration, logger)
	app.verification = services.NewVerificationService(rm, c.VerificationTokenValidityDuration)

	m := mailer.New(mailer.NewLogSender(logger), c.PublicBaseURL)
	hasher := cryptox.NewPasswordHasher(cryptox.DefaultParams)
	app.users = services.NewUserService(rm, app.tokens, app.verification, hasher, m, limiter, logger)

	return app, nil
}

func openStorage(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	switch c.Storage {
	case config.StorageMemory:
		logger.Warn(ctx, "using in-memory storage, all data is lost on exit")
		return repomanager.NewMemoryRepositoryManager(), nil

	case config.StoragePostgres:
		db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		rm, err := repomanager.NewPostgresRepositoryManager(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := rm.RunMigrations(ctx); err != nil {
			_ = rm.Close()
			return nil, err
		}
		return rm, nil
	}

	return nil, fmt.Errorf("unknown storage %q", c.Storage)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.verifier)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger, app.users, app.verifier)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeExpired drops refresh and verification rows past their expiry.
func (app *App) purgeExpired(ctx context.Context) {
	refresh, err := app.tokens.PurgeExpired(ctx)
	if err != nil {
		app.logger.Error(ctx, "purge refresh tokens", "error", err)
	}

	verification, err := app.verification.PurgeExpired(ctx)
	if err != nil {
		app.logger.Error(ctx, "purge verification tokens", "error", err)
	}

	if refresh > 0 || verification > 0 {
		app.logger.Info(ctx, "expired tokens purged", "refresh", refresh, "verification", verification)
	}
}

func (app *App) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(app.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.purgeExpired(ctx)
		}
	}
}

// Run serves HTTP and gRPC until ctx is cancelled, a signal arrives or a
// listener fails, then releases storage.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runJanitor(ctx)
	}()

	wg.Wait()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "close redis", "error", err)
		}
	}
	if err := app.rm.Close(); err != nil {
		app.logger.Error(ctx, "close storage", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
