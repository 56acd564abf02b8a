package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/config"
	"github.com/AnshRaj112/mystery-message-backend/internal/database"
	"github.com/AnshRaj112/mystery-message-backend/internal/handlers"
	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/internal/routes"
	"github.com/AnshRaj112/mystery-message-backend/internal/services"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
	"github.com/AnshRaj112/mystery-message-backend/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load env
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	env := logger.Development
	if cfg.IsProduction() {
		env = logger.Production
	}
	log, err := logger.New(env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if envErr != nil {
		log.Debug(ctx, "no .env file found")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	mongoClient, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.DisconnectMongo(mongoClient); err != nil {
			log.Warn(ctx, "mongo disconnect", zap.Error(err))
		}
	}()

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURI)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	users := database.NewUserStore(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if n, err := users.Count(ctx); err == nil {
		log.Info(ctx, "identity store ready", zap.Int64("users", n))
	}

	var mailer services.EmailSender = services.LogSender{}
	if cfg.ResendAPIKey != "" {
		mailer = services.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	} else if cfg.IsProduction() {
		return errors.New("RESEND_API_KEY is required in production")
	} else {
		log.Warn(ctx, "RESEND_API_KEY not set; verification emails are only logged")
	}

	inbox := services.NewInbox(redisClient)
	sessions := services.NewSessionStore(redisClient, cfg.SessionTTL)
	accounts := services.NewAccountService(services.AccountConfig{
		Store:  users,
		Mailer: mailer,
		Hasher: utils.NewPasswordHasher(utils.Argon2Params{
			Time:        cfg.Argon2.Time,
			MemoryKiB:   cfg.Argon2.MemKiB,
			Parallelism: cfg.Argon2.Par,
		}),
		Publisher:   inbox,
		CodeTTL:     cfg.VerifyCodeTTL,
		FrontendURL: cfg.FrontendURL,
	})

	authLimiter := middleware.NewIPLimiter(cfg.RateLimit.AuthEvery, cfg.RateLimit.AuthBurst, cfg.TrustProxy)
	defer authLimiter.Stop()

	h := handlers.New(accounts, sessions, inbox, map[string]handlers.Pinger{
		"mongodb": func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) },
		"redis":   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	router := routes.NewRouter(h, routes.Options{
		Logger:         log,
		Sessions:       sessions,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHost:    cfg.AllowedHost(),
		SendLimiter: middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			Scope:      "send-message",
			Window:     cfg.RateLimit.SendWindow,
			Max:        cfg.RateLimit.SendMax,
			BlockFor:   cfg.RateLimit.SendBlockFor,
			TrustProxy: cfg.TrustProxy,
		}),
		AuthLimiter: authLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "mystery-message backend listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
