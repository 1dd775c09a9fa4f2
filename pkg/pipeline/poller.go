package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner triggers one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

type PollerConfig struct {
	Logger   *slog.Logger
	Pipeline Runner
	Interval time.Duration

	// Optional.
	Clock clockwork.Clock
}

func (c *PollerConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Poller runs the pipeline on a fixed interval: once immediately, then on
// every tick. A failed run is logged and the loop keeps going; the staging
// table is truncate-and-replace, so the next tick starts clean. Runs never
// overlap because the loop is the only trigger.
type Poller struct {
	log *slog.Logger
	cfg PollerConfig
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Poller{log: cfg.Logger, cfg: cfg}, nil
}

func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting poller", "interval", p.cfg.Interval)

	p.runOnce(ctx)

	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return nil
		case <-ticker.Chan():
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.cfg.Pipeline.Run(ctx); err != nil {
		p.log.Error("scheduled run failed; continuing", "error", err)
	}
}
