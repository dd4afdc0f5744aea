package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veritest-ai/toolgate/internal/audit"
	"github.com/veritest-ai/toolgate/internal/confirm"
	"github.com/veritest-ai/toolgate/internal/gateway"
	"github.com/veritest-ai/toolgate/internal/ownership"
	"github.com/veritest-ai/toolgate/internal/registry"
	"github.com/veritest-ai/toolgate/internal/schema"
	"github.com/veritest-ai/toolgate/internal/server"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TOOLGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("TOOLGATE_PORT", "8090")
	production := envOrDefault("TOOLGATE_ENV", "development") == "production"
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	executorURL := os.Getenv("TOOLGATE_EXECUTOR_URL")
	toolsFile := os.Getenv("TOOLGATE_TOOLS_FILE")
	toolCacheTTL := envOrDefaultInt("TOOLGATE_TOOL_CACHE_TTL_S", 60)
	confirmTTL := envOrDefaultInt("TOOLGATE_CONFIRM_TTL_S", 300)
	maxPending := envOrDefaultInt("TOOLGATE_MAX_PENDING", 5)
	requireSession := os.Getenv("TOOLGATE_REQUIRE_SESSION") == "true"
	retentionDays := envOrDefaultInt("TOOLGATE_AUDIT_RETENTION_DAYS", 90)

	logger.Info("starting toolgate server",
		zap.String("port", port),
		zap.Bool("production", production),
		zap.Int("confirm_ttl_s", confirmTTL),
		zap.Int("audit_retention_days", retentionDays),
	)

	// Postgres — ownership lookups and confirmation persistence
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}

	// Audit store — ClickHouse or log fallback
	var auditStore audit.Store
	if clickhouseDSN != "" {
		chStore, err := audit.NewClickHouseStore(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log store",
				zap.Error(err),
			)
			auditStore = audit.NewLogStore(logger)
		} else {
			auditStore = chStore
			logger.Info("clickhouse audit store connected")
		}
	} else {
		auditStore = audit.NewLogStore(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log audit store")
	}
	defer auditStore.Close()

	auditLogger := audit.NewLogger(audit.Config{
		Console: true,
		Store:   auditStore,
		Logger:  logger,
	})

	// Retention cleanup, daily
	retention := time.Duration(retentionDays) * 24 * time.Hour
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := auditStore.Cleanup(ctx, retention); err != nil {
				logger.Warn("audit retention cleanup failed", zap.Error(err))
			}
			cancel()
		}
	}()

	// Confirmation manager
	confirms := confirm.NewManager(confirm.Config{
		TTL:               time.Duration(confirmTTL) * time.Second,
		MaxPendingPerUser: maxPending,
		RequireSession:    requireSession,
		Persister:         confirm.NewPostgresPersister(db),
		Logger:            logger,
	})
	defer confirms.Close()

	// Ownership verifier
	owners := ownership.NewVerifier(ownership.Config{DB: db, Logger: logger})

	// Tool definitions — static file or Postgres registry
	var tools gateway.Tools
	if toolsFile != "" {
		toolset, err := server.LoadToolset(toolsFile)
		if err != nil {
			logger.Fatal("failed to load tool definitions", zap.Error(err))
		}
		tools = toolset
		logger.Info("tool definitions loaded from file", zap.String("path", toolsFile))
	} else {
		tools = registry.NewPostgresToolRegistry(registry.PostgresToolRegistryConfig{
			DB:       db,
			CacheTTL: time.Duration(toolCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres tool registry connected")
	}

	// Runner — executor service or echo fallback
	var runner gateway.Runner
	if executorURL != "" {
		runner = server.NewHTTPRunner(executorURL, 30*time.Second)
		logger.Info("forwarding authorized calls to executor", zap.String("url", executorURL))
	} else {
		runner = &server.EchoRunner{Logger: logger}
		logger.Info("no TOOLGATE_EXECUTOR_URL set, using echo runner")
	}

	gw := gateway.New(gateway.Config{
		Validator:     schema.NewValidator(schema.Limits{Production: production}),
		Ownership:     owners,
		Confirmations: confirms,
		Audit:         auditLogger,
		Permissions:   server.AllowAllPermissions{},
		RateLimiter:   server.AllowAllLimiter{},
		Tools:         tools,
		Runner:        runner,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server.NewGatewayServer(gw, confirms, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("toolgate server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
