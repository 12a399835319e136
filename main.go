package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/config"
	"github.com/finsight-hq/finsight-engine/pkg/database"
	"github.com/finsight-hq/finsight-engine/pkg/handlers"
	"github.com/finsight-hq/finsight-engine/pkg/llm"
	"github.com/finsight-hq/finsight-engine/pkg/logging"
	"github.com/finsight-hq/finsight-engine/pkg/mcp"
	"github.com/finsight-hq/finsight-engine/pkg/mcp/tools"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/middleware"
	"github.com/finsight-hq/finsight-engine/pkg/services"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse/mssql"
	warehousepg "github.com/finsight-hq/finsight-engine/pkg/warehouse/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine exited", zap.Error(err))
	}
}

// newLogger builds a production JSON logger for deployed environments and a
// colorized development logger everywhere else.
func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "staging" {
		return zap.NewProduction()
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	return logCfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.String("warehouse_driver", cfg.Warehouse.Driver),
		zap.String("warehouse", logging.SanitizeConnectionString(cfg.Warehouse.ConnectionString())),
		zap.Bool("execute_queries", cfg.Resolver.ExecuteQueries),
		zap.Bool("llm_refinement", cfg.LLM.IsAvailable()),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	exec, closeWarehouse, err := newExecutor(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer closeWarehouse()

	// The metadata snapshot must be in place before the first question
	// arrives; fail fast if the warehouse dimensions cannot be read.
	store := metadata.NewStore(metadata.NewLoader(exec, logger), logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load metadata snapshot: %w", err)
	}

	lex, err := services.NewLexicon()
	if err != nil {
		return fmt.Errorf("failed to load lexicon: %w", err)
	}

	extractor := services.NewEntityExtractor(store, lex, logger)
	if cfg.LLM.IsAvailable() {
		client, err := llm.NewFromConfig(&llm.Config{
			Provider: cfg.LLM.Provider,
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
		extractor = services.NewLLMEntityExtractor(extractor, client, breaker, lex, cfg.LLM.MinConfidence, logger)
		logger.Info("LLM extraction refinement enabled",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
	}

	companies := services.NewCompanyResolver(store, cfg.Resolver.SimilarityThreshold, logger)
	periods := services.NewPeriodResolver(store, exec, lex, logger)
	metrics := services.NewMetricResolver(store, exec, lex, logger)
	resolution := services.NewResolutionService(store, exec, extractor, companies, periods, metrics, lex,
		services.ResolutionOptions{
			Timeout:        cfg.Resolver.Timeout(),
			MaxRows:        cfg.Resolver.MaxRows,
			ExecuteQueries: cfg.Resolver.ExecuteQueries,
		}, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewResolveHandler(resolution, logger).RegisterRoutes(mux)
	handlers.NewCompaniesHandler(companies, logger).RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("finsight-engine", cfg.Version, logger)
		tools.RegisterResolveTools(mcpServer.MCP(), &tools.ResolveToolDeps{Resolution: resolution, Logger: logger})
		tools.RegisterCompanyTools(mcpServer.MCP(), &tools.CompanyToolDeps{Companies: companies, Logger: logger})
		tools.RegisterMetadataTools(mcpServer.MCP(), &tools.MetadataToolDeps{Store: store, Logger: logger})
		mux.Handle(cfg.MCP.Path, middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))
		logger.Info("MCP endpoint mounted", zap.String("path", cfg.MCP.Path))
	}

	if interval := cfg.Resolver.RefreshInterval(); interval > 0 {
		go refreshMetadata(ctx, store, interval, logger)
	}

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting finsight-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// newExecutor builds the warehouse executor for the configured driver. The
// returned cleanup closes whatever owns the underlying connections.
func newExecutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (warehouse.Executor, func(), error) {
	switch strings.ToLower(cfg.Warehouse.Driver) {
	case config.DriverMSSQL:
		exec, err := mssql.NewExecutor(ctx, &mssql.Config{
			Host:     cfg.Warehouse.Host,
			Port:     cfg.Warehouse.Port,
			Database: cfg.Warehouse.Database,
			Username: cfg.Warehouse.User,
			Password: cfg.Warehouse.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		return exec, func() { exec.Close() }, nil
	default:
		if cfg.Warehouse.AutoMigrate {
			if err := migrateWarehouse(cfg, logger); err != nil {
				return nil, nil, err
			}
		}
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Warehouse.ConnectionString(),
			MaxConnections: cfg.Warehouse.MaxConnections,
		})
		if err != nil {
			return nil, nil, err
		}
		return warehousepg.NewExecutorFromPool(db.Pool), db.Close, nil
	}
}

// migrateWarehouse provisions the warehouse schema through a short-lived
// database/sql connection; the pgx pool is opened afterwards.
func migrateWarehouse(cfg *config.Config, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.Warehouse.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()
	return database.RunMigrations(db, cfg.Warehouse.MigrationsPath, logger)
}

// refreshMetadata re-reads the warehouse dimensions on a fixed cadence so
// newly listed companies and heads become resolvable without a restart. A
// failed refresh keeps the previous snapshot.
func refreshMetadata(ctx context.Context, store *metadata.Store, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Metadata refresh loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Refresh(ctx); err != nil {
				logger.Warn("Metadata refresh failed", zap.Error(err))
			}
		}
	}
}
