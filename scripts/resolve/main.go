// resolve runs questions through the full resolution pipeline against a live
// warehouse and prints the resolved spec, the parameterized retrieval, and
// (with -execute) the rows it returns.
//
// With no arguments it runs a built-in smoke set covering the main question
// shapes; pass one or more questions to resolve those instead.
//
// Usage: go run ./scripts/resolve [flags] ["question" ...]
//
// Warehouse connection: WAREHOUSE_* environment variables (see pkg/config).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/config"
	"github.com/finsight-hq/finsight-engine/pkg/database"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/services"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse/mssql"
	warehousepg "github.com/finsight-hq/finsight-engine/pkg/warehouse/postgres"
)

// smokeQuestions covers one question of each shape the pipeline handles.
var smokeQuestions = []string{
	"What was UBL's total assets in FY2024?",
	"UBL net income Q2 2024",
	"What is the latest total assets of United Bank Limited?",
	"UBL net income ttm",
	"What is the EPS of UBL?",
	"UBL return on equity FY2024",
}

func main() {
	// Parse flags
	execute := flag.Bool("execute", false, "Execute the built retrieval and print rows")
	consolidation := flag.String("consolidation", "", "Consolidation override (consolidated/unconsolidated)")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout per question")
	asJSON := flag.Bool("json", false, "Print the full resolution result as JSON")
	flag.Parse()

	// Create logger
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load("smoke")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	resolution, cleanup, err := buildPipeline(ctx, cfg, *execute, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	questions := flag.Args()
	if len(questions) == 0 {
		questions = smokeQuestions
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Resolving %d question(s) against %s warehouse\n", len(questions), cfg.Warehouse.Driver)
	fmt.Println(strings.Repeat("=", 80))

	failures := 0
	for _, q := range questions {
		qctx, cancel := context.WithTimeout(ctx, *timeout)
		res, err := resolution.Resolve(qctx, q, *consolidation)
		cancel()

		fmt.Printf("\n%s\n", strings.Repeat("-", 80))
		if err != nil {
			failures++
			fmt.Printf("✗ FAIL %q\n  Error: %v\n", q, err)
			continue
		}
		fmt.Printf("✓ %q\n", q)
		if *asJSON {
			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(out))
			continue
		}
		printResult(res)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	if failures > 0 {
		fmt.Printf("%d of %d questions failed.\n", failures, len(questions))
		os.Exit(1)
	}
	fmt.Printf("All %d questions resolved.\n", len(questions))
}

// buildPipeline wires the same resolver stack the server uses, with query
// execution controlled by the -execute flag instead of the config.
func buildPipeline(ctx context.Context, cfg *config.Config, execute bool, logger *zap.Logger) (services.ResolutionService, func(), error) {
	exec, cleanup, err := newExecutor(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect warehouse: %w", err)
	}

	store := metadata.NewStore(metadata.NewLoader(exec, logger), logger)
	if err := store.Load(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load metadata: %w", err)
	}

	lex, err := services.NewLexicon()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load lexicon: %w", err)
	}

	extractor := services.NewEntityExtractor(store, lex, logger)
	companies := services.NewCompanyResolver(store, cfg.Resolver.SimilarityThreshold, logger)
	periods := services.NewPeriodResolver(store, exec, lex, logger)
	metrics := services.NewMetricResolver(store, exec, lex, logger)
	resolution := services.NewResolutionService(store, exec, extractor, companies, periods, metrics, lex,
		services.ResolutionOptions{
			MaxRows:        cfg.Resolver.MaxRows,
			ExecuteQueries: execute,
		}, logger)
	return resolution, cleanup, nil
}

func newExecutor(ctx context.Context, cfg *config.Config) (warehouse.Executor, func(), error) {
	if strings.ToLower(cfg.Warehouse.Driver) == config.DriverMSSQL {
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

func printResult(res *services.ResolutionResult) {
	spec := res.Spec
	fmt.Printf("  Company:       %s (%s, id %d)\n", spec.Company.Company.Name, spec.Company.Company.Ticker, spec.Company.Company.CompanyID)
	fmt.Printf("  Metric:        %s (head %d, %s)\n", spec.Head.Name, spec.Head.HeadID, spec.Head.Kind)
	if spec.Head.DissectionGroupID != 0 {
		fmt.Printf("  Dissection:    group %d\n", spec.Head.DissectionGroupID)
	}
	fmt.Printf("  Period:        %s\n", formatPeriod(spec.Period))
	fmt.Printf("  Consolidation: %d\n", spec.ConsolidationID)
	fmt.Printf("  SQL:           %s\n", strings.Join(strings.Fields(res.SQL), " "))
	fmt.Printf("  Args:          %v\n", res.Args)
	fmt.Printf("  Elapsed:       %dms\n", res.ElapsedMS)

	if !res.Executed {
		return
	}
	fmt.Printf("  Rows:          %d\n", res.RowCount)
	for i, row := range res.Rows {
		fmt.Printf("  Row %d:\n", i+1)
		for _, col := range res.Columns {
			fmt.Printf("    %-22s %v\n", col.Name, row[col.Name])
		}
	}
}

func formatPeriod(p models.ResolvedPeriod) string {
	if p.PeriodEnd != nil {
		return fmt.Sprintf("period end %s (%s)", p.PeriodEnd.Format("2006-01-02"), p.Family)
	}
	return fmt.Sprintf("term %d, FY%d (%s)", p.TermID, p.FiscalYear, p.Family)
}
