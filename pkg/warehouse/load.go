package warehouse

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ReplaceViaCSV atomically replaces the full contents of target with count
// rows produced by writeRow. The batch is staged through a temporary CSV and
// an all-VARCHAR stage table; values are cast to the target's column types on
// the final insert, so one uncastable value fails the whole batch and the
// transaction rolls back with the previous contents intact.
//
// target must be a fully qualified table name. columns are the target column
// names in the order writeRow emits fields. Empty CSV fields load as NULL.
func ReplaceViaCSV(ctx context.Context, log *slog.Logger, conn Connection, target string, columns []string, count int, writeRow func(w *csv.Writer, i int) error) (int64, error) {
	start := time.Now()

	f, err := os.CreateTemp("", "bannerlake-load-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp csv: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	w := csv.NewWriter(f)
	for i := 0; i < count; i++ {
		if err := writeRow(w, i); err != nil {
			return 0, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close csv: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", target)); err != nil {
		return 0, fmt.Errorf("clear %s: %w", target, err)
	}

	stage := fmt.Sprintf("stage_load_%d", time.Now().UnixNano())
	stageCols := make([]string, len(columns))
	for i, col := range columns {
		stageCols[i] = col + " VARCHAR"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", stage, strings.Join(stageCols, ", "))); err != nil {
		return 0, fmt.Errorf("create stage table: %w", err)
	}

	copyStmt := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stage, escapeSingleQuotes(f.Name()))
	if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
		return 0, fmt.Errorf("copy csv into stage: %w", err)
	}

	colList := strings.Join(columns, ", ")
	res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, colList, colList, stage))
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", target, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", stage)); err != nil {
		return 0, fmt.Errorf("drop stage table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true

	log.Debug("replaced table contents", "table", target, "rows", rows, "duration", time.Since(start))
	return rows, nil
}
