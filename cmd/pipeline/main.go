package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/veldtlabs/bannerlake/internal/admin"
	"github.com/veldtlabs/bannerlake/pkg/metrics"
	"github.com/veldtlabs/bannerlake/pkg/pipeline"
	"github.com/veldtlabs/bannerlake/pkg/server"
	"github.com/veldtlabs/bannerlake/pkg/source"
	"github.com/veldtlabs/bannerlake/pkg/star"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8081"
	defaultMetricsAddr = ":8080"
	defaultDBPath      = "bannerlake.duckdb"

	sourceAPI  = "api"
	sourceDrop = "drop"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The pipeline's own outputs must never come back around as input.
	if cfg.Once && cfg.Source == sourceDrop && source.SkipObject(cfg.ObjectKey) {
		log.Info("object is pipeline output, skipping", "key", cfg.ObjectKey)
		return nil
	}

	db, err := warehouse.New(ctx, warehouse.Config{
		Logger:  log,
		Path:    cfg.DBPath,
		Catalog: cfg.DBCatalog,
		Schema:  cfg.DBSchema,
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
	if err := admin.InitSchema(ctx, log, store); err != nil {
		return err
	}

	src, archive, err := newSource(ctx, log, cfg)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(pipeline.Config{
		Logger:           log,
		Clock:            clockwork.NewRealClock(),
		Store:            store,
		Source:           src,
		ArchiveOnSuccess: archive,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if cfg.Once {
		_, err := pipe.Run(ctx)
		return err
	}

	if cfg.PollInterval > 0 {
		poller, err := pipeline.NewPoller(pipeline.PollerConfig{
			Logger:   log,
			Clock:    clockwork.NewRealClock(),
			Interval: cfg.PollInterval,
			Pipeline: pipe,
		})
		if err != nil {
			return fmt.Errorf("failed to create poller: %w", err)
		}
		go func() {
			if err := poller.Run(ctx); err != nil {
				log.Error("poller stopped", "error", err)
				cancel()
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen tcp: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	srv, err := server.New(server.Config{
		Logger:   log,
		Listener: listener,
		Pipeline: pipe,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	errCh := srv.Start(ctx, cancel)

	select {
	case <-ctx.Done():
		log.Info("context cancelled, server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func newSource(ctx context.Context, log *slog.Logger, cfg Config) (source.Source, bool, error) {
	switch cfg.Source {
	case sourceAPI:
		src, err := source.NewAPISource(source.APIConfig{Logger: log, URL: cfg.APIURL})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create api source: %w", err)
		}
		return src, false, nil

	case sourceDrop:
		s3cfg, err := source.LoadS3ConfigFromEnv()
		if err != nil {
			return nil, false, fmt.Errorf("failed to load s3 config: %w", err)
		}
		client, err := source.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create s3 client: %w", err)
		}
		src, err := source.NewDropSource(source.DropConfig{
			Logger:        log,
			Client:        client,
			Bucket:        cfg.DropBucket,
			Key:           cfg.ObjectKey,
			ArchiveBucket: cfg.ArchiveBucket,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create drop source: %w", err)
		}
		return src, cfg.Archive, nil

	default:
		return nil, false, fmt.Errorf("unknown source %q (want %q or %q)", cfg.Source, sourceAPI, sourceDrop)
	}
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string
	ListenAddr  string

	DBPath    string
	DBCatalog string
	DBSchema  string

	Source        string
	APIURL        string
	DropBucket    string
	ObjectKey     string
	ArchiveBucket string
	Archive       bool

	Once         bool
	PollInterval time.Duration
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("LISTEN_ADDR", defaultListenAddr), "address to listen on for run triggers (env: LISTEN_ADDR)")

	flag.StringVar(&cfg.DBPath, "db-path", getenv("DB_PATH", defaultDBPath), "duckdb database file (env: DB_PATH)")
	flag.StringVar(&cfg.DBCatalog, "db-catalog", getenv("DB_CATALOG", ""), "warehouse catalog name (env: DB_CATALOG)")
	flag.StringVar(&cfg.DBSchema, "db-schema", getenv("DB_SCHEMA", ""), "warehouse schema name (env: DB_SCHEMA)")

	flag.StringVar(&cfg.Source, "source", getenv("SOURCE", sourceAPI), "event source: api or drop (env: SOURCE)")
	flag.StringVar(&cfg.APIURL, "api-url", getenv("API_URL", ""), "events endpoint for the api source (env: API_URL)")
	flag.StringVar(&cfg.DropBucket, "drop-bucket", getenv("DROP_BUCKET", ""), "bucket for the drop source (env: DROP_BUCKET)")
	flag.StringVar(&cfg.ObjectKey, "object", getenv("OBJECT_KEY", ""), "object key for the drop source (env: OBJECT_KEY)")
	flag.StringVar(&cfg.ArchiveBucket, "archive-bucket", getenv("ARCHIVE_BUCKET", ""), "archive bucket for processed objects; default: drop bucket (env: ARCHIVE_BUCKET)")
	flag.BoolVar(&cfg.Archive, "archive", getenvBool("ARCHIVE", true), "archive the drop object after a successful run (env: ARCHIVE)")

	flag.BoolVar(&cfg.Once, "once", false, "run the pipeline once and exit")

	var err error
	cfg.PollInterval, err = getenvDuration("POLL_INTERVAL", 0)
	if err != nil {
		return Config{}, err
	}
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "interval between scheduled runs, 0 disables polling (env: POLL_INTERVAL)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	switch cfg.Source {
	case sourceAPI:
		if cfg.APIURL == "" {
			return Config{}, fmt.Errorf("api url is empty (set API_URL or --api-url)")
		}
	case sourceDrop:
		if cfg.DropBucket == "" {
			return Config{}, fmt.Errorf("drop bucket is empty (set DROP_BUCKET or --drop-bucket)")
		}
		if cfg.ObjectKey == "" {
			return Config{}, fmt.Errorf("object key is empty (set OBJECT_KEY or --object)")
		}
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
