// Command tokenguardd serves the tokenguard HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/internal/config"
	"github.com/MrEthical07/tokenguard/internal/database"
	"github.com/MrEthical07/tokenguard/internal/httpapi"
	"github.com/MrEthical07/tokenguard/internal/logging"
	"github.com/MrEthical07/tokenguard/metrics/export/prometheus"
	"github.com/MrEthical07/tokenguard/tokenstore"
	"github.com/MrEthical07/tokenguard/userstore"
)

// userDirectory is a UserProvider that can also create accounts.
type userDirectory interface {
	tokenguard.UserProvider
	Create(ctx context.Context, email, passwordHash, role string) (tokenguard.UserRecord, error)
}

func main() {
	lg, err := logging.Init(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	builder := tokenguard.New().
		WithConfig(cfg.Engine).
		WithLogger(lg).
		WithAlertSink(tokenguard.NewLogAlertSink(lg))

	var users userDirectory = userstore.NewMemory()

	needRedis := cfg.Store.Backend == "redis" ||
		cfg.Engine.Security.EnableRefreshThrottle ||
		cfg.Engine.Security.EnableLoginThrottle
	if needRedis {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Store.RedisAddr},
			Password: cfg.Store.RedisPassword,
		})
		closers = append(closers, rdb)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			lg.Fatal("redis ping", zap.String("addr", cfg.Store.RedisAddr), zap.Error(err))
		}
		builder.WithRedis(rdb)
	}

	if cfg.Store.DatabaseURL != "" {
		db, err := database.Connect(ctx, database.Config{Driver: cfg.Store.DatabaseDriver, DSN: cfg.Store.DatabaseURL})
		if err != nil {
			lg.Fatal("database", zap.Error(err))
		}
		closers = append(closers, db)
		if err := database.RunMigrations(ctx, db.DB); err != nil {
			lg.Fatal("migrations", zap.Error(err))
		}
		users = userstore.NewPostgres(db)
		if cfg.Store.Backend == "postgres" {
			builder.WithStore(tokenstore.NewPostgresStore(db))
		}
	}
	if cfg.Store.Backend == "memory" {
		lg.Warn("memory store selected; refresh tokens do not survive restarts")
		builder.WithStore(tokenstore.NewMemoryStore())
	}
	builder.WithUserProvider(users)

	if cfg.AuditLogPath != "" {
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			lg.Fatal("audit log", zap.Error(err))
		}
		closers = append(closers, f)
		builder.WithAuditSink(tokenguard.NewJSONWriterSink(f))
	}

	engine, err := builder.Build()
	if err != nil {
		lg.Fatal("engine", zap.Error(err))
	}
	defer engine.Close()

	if err := bootstrapUser(ctx, engine, users, cfg.Bootstrap); err != nil {
		lg.Fatal("bootstrap user", zap.Error(err))
	}

	api := httpapi.NewServer(engine, prometheus.NewExporter(engine).Handler(), lg.Named("http"), httpapi.Options{
		UniformRefreshErrors: cfg.HTTP.UniformRefreshErrors,
		SecureCookies:        cfg.Production,
		TrustProxy:           cfg.HTTP.TrustProxy,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http server shutdown failed", zap.Error(err))
	}
}

func bootstrapUser(ctx context.Context, engine *tokenguard.Engine, users userDirectory, b config.BootstrapUser) error {
	if b.Email == "" {
		return nil
	}
	if _, err := users.GetUserByIdentifier(ctx, b.Email); err == nil {
		return nil
	} else if !errors.Is(err, tokenguard.ErrUserNotFound) {
		return err
	}
	hash, err := engine.HashPassword(b.Password)
	if err != nil {
		return err
	}
	_, err = users.Create(ctx, b.Email, hash, b.Role)
	return err
}
