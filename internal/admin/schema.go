package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veldtlabs/bannerlake/pkg/star"
)

// InitSchema creates any missing warehouse tables. Existing tables are left
// untouched; the schemas are a fixed contract.
func InitSchema(ctx context.Context, log *slog.Logger, store *star.Store) error {
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("schema initialized", "tables", len(star.Tables()))
	return nil
}

// SeedCalendar fills dim_time for the given date range, skipping days
// already present.
func SeedCalendar(ctx context.Context, log *slog.Logger, store *star.Store, from, to time.Time, dryRun bool) error {
	if dryRun {
		log.Info("dry run: would seed calendar",
			"from", from.Format(time.DateOnly),
			"to", to.Format(time.DateOnly),
		)
		return nil
	}

	inserted, err := store.SeedCalendar(ctx, from, to)
	if err != nil {
		return fmt.Errorf("seed calendar: %w", err)
	}
	log.Info("calendar seeded",
		"from", from.Format(time.DateOnly),
		"to", to.Format(time.DateOnly),
		"rows", inserted,
	)
	return nil
}
