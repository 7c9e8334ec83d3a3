package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"chat-backend/internal/auth"
	"chat-backend/internal/chat"
	"chat-backend/internal/db"
	"chat-backend/internal/observability"
	"chat-backend/internal/users"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Config  Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

// Dependencies are the connected backends the router is built on. Users and
// ChatUpstream default to the Postgres repository and the configured HTTP
// upstream when nil.
type Dependencies struct {
	Config       Config
	Logger       *observability.Logger
	DB           *sql.DB
	Redis        redis.UniversalClient
	Users        users.Store
	ChatUpstream chat.Upstream
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		_ = database.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	handler, err := NewHandler(Dependencies{
		Config: cfg,
		Logger: logger,
		DB:     database,
		Redis:  redisClient,
	})
	if err != nil {
		_ = redisClient.Close()
		_ = database.Close()
		return nil, err
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return errors.Join(redisClient.Close(), database.Close())
		},
	}, nil
}

// NewHandler wires the services onto the router and wraps it in the request
// logging and panic recovery middleware.
func NewHandler(deps Dependencies) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger

	userStore := deps.Users
	if userStore == nil {
		userStore = users.NewRepository(deps.DB)
	}
	chatUpstream := deps.ChatUpstream
	if chatUpstream == nil {
		chatUpstream = chat.NewHTTPUpstream(&http.Client{}, cfg.ChatUpstreamURL, cfg.ChatUpstreamAPIKey)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}
	revocations := auth.NewRedisRevocationStore(deps.Redis)

	authService := auth.NewService(userStore, tokens, revocations)
	authService.WithSecurityConfig(cfg.BcryptCost, cfg.RevokeRotatedRefresh)
	authHandler := auth.NewHandler(authService, logger, cfg.SecureCookies())
	guard := auth.NewGuard(tokens, revocations, userStore, logger)
	loginLimiter := auth.NewLoginRateLimiter(deps.Redis, logger, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	userHandler := users.NewHandler(users.NewService(userStore), auth.UserIDFromContext, logger)
	chatHandler := chat.NewHandler(chatUpstream, logger, cfg.ChatTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /user", guard.Middleware(http.HandlerFunc(userHandler.Get)))
	mux.Handle("PATCH /user", guard.Middleware(http.HandlerFunc(userHandler.Update)))
	mux.Handle("DELETE /user", guard.Middleware(http.HandlerFunc(authHandler.DeleteAccount)))
	mux.Handle("POST /api/chat", guard.Middleware(http.HandlerFunc(chatHandler.Chat)))
	mux.HandleFunc("GET /health", healthHandler(deps.DB, deps.Redis))

	return observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux)), nil
}

func healthHandler(database *sql.DB, redisClient redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := ping(ctx, database, redisClient); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func ping(ctx context.Context, database *sql.DB, redisClient redis.UniversalClient) error {
	if database != nil {
		if err := database.PingContext(ctx); err != nil {
			return err
		}
	}
	return redisClient.Ping(ctx).Err()
}
