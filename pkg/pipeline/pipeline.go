// Package pipeline sequences one ELT run: fetch a raw batch, normalize it,
// replace the staging table, reconcile the star schema, then optionally
// archive the source input. Steps are strictly sequential; each waits on the
// warehouse's row counts before the next begins.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/veldtlabs/bannerlake/pkg/metrics"
	"github.com/veldtlabs/bannerlake/pkg/normalize"
	"github.com/veldtlabs/bannerlake/pkg/source"
	"github.com/veldtlabs/bannerlake/pkg/star"
)

// Store is the slice of the star store a run drives.
type Store interface {
	ReplaceStaging(ctx context.Context, rows []normalize.Row) (int64, error)
	Reconcile(ctx context.Context) (*star.Report, error)
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID    string            `json:"run_id"`
	Fetched  int               `json:"fetched"`
	Staged   int64             `json:"staged"`
	Steps    []star.StepResult `json:"steps,omitempty"`
	Archived bool              `json:"archived"`
	Duration time.Duration     `json:"duration"`
}

type Config struct {
	Logger *slog.Logger
	Store  Store
	Source source.Source

	// Optional.
	Clock            clockwork.Clock
	ArchiveOnSuccess bool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Source == nil {
		return fmt.Errorf("source is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Pipeline{log: cfg.Logger, cfg: cfg}, nil
}

// Run executes one full pass. An empty fetch is a valid no-op outcome that
// leaves the warehouse untouched. Any step failure aborts the run; completed
// warehouse steps stay applied and are safe to repeat because every one of
// them inserts only what is missing.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := p.cfg.Clock.Now()
	report := &Report{RunID: uuid.NewString()}
	log := p.log.With("run", report.RunID)

	report, err := p.run(ctx, log, report)
	report.Duration = p.cfg.Clock.Since(start)
	metrics.RunDuration.Set(report.Duration.Seconds())
	if err != nil {
		metrics.RunOutcomes.WithLabelValues("error").Inc()
		log.Error("pipeline run failed", "error", err, "duration", report.Duration)
		return report, err
	}
	metrics.RunOutcomes.WithLabelValues("ok").Inc()
	log.Info("pipeline run complete",
		"fetched", report.Fetched,
		"staged", report.Staged,
		"archived", report.Archived,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, report *Report) (*Report, error) {
	records, err := p.cfg.Source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch: %w", err)
	}
	report.Fetched = len(records)
	metrics.RecordsFetched.Add(float64(len(records)))

	if len(records) == 0 {
		log.Info("no records to process")
		return report, nil
	}

	rows := normalize.Batch(records)

	staged, err := p.cfg.Store.ReplaceStaging(ctx, rows)
	if err != nil {
		return report, fmt.Errorf("load staging: %w", err)
	}
	report.Staged = staged
	metrics.RowsStaged.Add(float64(staged))
	log.Debug("staged batch", "rows", staged)

	starReport, err := p.cfg.Store.Reconcile(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Steps = starReport.Steps
	for _, step := range starReport.Steps {
		metrics.RowsInserted.WithLabelValues(step.Step).Add(float64(step.RowsInserted))
	}

	if p.cfg.ArchiveOnSuccess {
		archiver, ok := p.cfg.Source.(source.Archiver)
		if !ok {
			return report, fmt.Errorf("archive requested but source cannot archive")
		}
		if err := archiver.Archive(ctx); err != nil {
			return report, fmt.Errorf("archive: %w", err)
		}
		report.Archived = true
	}

	return report, nil
}
