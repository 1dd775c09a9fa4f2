package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veldtlabs/bannerlake/pkg/star"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

// ResetDB drops every warehouse table the pipeline owns: staging, the
// dimensions, dim_time, and the fact table. Destructive; prompts unless yes.
func ResetDB(ctx context.Context, log *slog.Logger, db warehouse.DB, dryRun, yes bool) error {
	tables := star.Tables()

	if dryRun {
		for _, table := range tables {
			log.Info("dry run: would drop table", "table", table)
		}
		return nil
	}

	ok, err := confirm(fmt.Sprintf("This will drop %d tables from %s.%s", len(tables), db.Catalog(), db.Schema()), yes)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("reset aborted")
		return nil
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, table := range tables {
		qualified := fmt.Sprintf("%s.%s.%s", db.Catalog(), db.Schema(), table)
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qualified)); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
		log.Info("dropped table", "table", table)
	}
	return nil
}
