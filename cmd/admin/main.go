package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/veldtlabs/bannerlake/internal/admin"
	"github.com/veldtlabs/bannerlake/pkg/star"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Warehouse configuration
	dbPathFlag := flag.String("db-path", "bannerlake.duckdb", "duckdb database file (or set DB_PATH env var)")
	dbCatalogFlag := flag.String("db-catalog", "", "warehouse catalog name (or set DB_CATALOG env var)")
	dbSchemaFlag := flag.String("db-schema", "", "warehouse schema name (or set DB_SCHEMA env var)")

	// Commands
	initSchemaFlag := flag.Bool("init-schema", false, "Create any missing warehouse tables")
	seedCalendarFlag := flag.Bool("seed-calendar", false, "Seed dim_time for the --from/--to date range")
	countsFlag := flag.Bool("counts", false, "Print the row count of every warehouse table")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all warehouse tables (staging, dim_*, fact_events)")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Seed options
	fromFlag := flag.String("from", "", "start date for --seed-calendar (YYYY-MM-DD)")
	toFlag := flag.String("to", "", "end date for --seed-calendar (YYYY-MM-DD)")

	flag.Parse()

	log := newLogger(*verboseFlag)

	// Override warehouse flags with environment variables if set
	if envDBPath := os.Getenv("DB_PATH"); envDBPath != "" {
		*dbPathFlag = envDBPath
	}
	if envDBCatalog := os.Getenv("DB_CATALOG"); envDBCatalog != "" {
		*dbCatalogFlag = envDBCatalog
	}
	if envDBSchema := os.Getenv("DB_SCHEMA"); envDBSchema != "" {
		*dbSchemaFlag = envDBSchema
	}

	ctx := context.Background()

	db, err := warehouse.New(ctx, warehouse.Config{
		Logger:  log,
		Path:    *dbPathFlag,
		Catalog: *dbCatalogFlag,
		Schema:  *dbSchemaFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close warehouse", "error", err)
		}
	}()

	store, err := star.NewStore(star.StoreConfig{Logger: log, DB: db})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	// Execute commands
	if *initSchemaFlag {
		return admin.InitSchema(ctx, log, store)
	}

	if *seedCalendarFlag {
		if *fromFlag == "" || *toFlag == "" {
			return fmt.Errorf("--from and --to are required for --seed-calendar")
		}
		from, err := time.Parse(time.DateOnly, *fromFlag)
		if err != nil {
			return fmt.Errorf("invalid --from %q: %w", *fromFlag, err)
		}
		to, err := time.Parse(time.DateOnly, *toFlag)
		if err != nil {
			return fmt.Errorf("invalid --to %q: %w", *toFlag, err)
		}
		if err := admin.InitSchema(ctx, log, store); err != nil {
			return err
		}
		return admin.SeedCalendar(ctx, log, store, from, to, *dryRunFlag)
	}

	if *countsFlag {
		return admin.Counts(ctx, store)
	}

	if *resetDBFlag {
		return admin.ResetDB(ctx, log, db, *dryRunFlag, *yesFlag)
	}

	flag.Usage()
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel}))
}
