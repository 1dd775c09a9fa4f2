package star

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/veldtlabs/bannerlake/pkg/fingerprint"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

const insertChunkSize = 500

// mergeDimension finds the distinct natural-key tuples staged this run that
// the dimension has never seen and inserts them with fingerprinted surrogate
// keys. Tuple equality treats null components as empty strings, so a key with
// a missing component and one with an empty component are the same entry.
// One transaction per dimension: either every missing tuple lands or none do.
func (s *Store) mergeDimension(ctx context.Context, conn warehouse.Connection, d Dimension) (int64, error) {
	start := time.Now()

	naturals := columnNames(d.NaturalKeys)
	attrs := columnNames(d.Attributes)
	selectCols := strings.Join(append(append([]string{}, naturals...), attrs...), ", ")

	partition := make([]string, len(naturals))
	match := make([]string, len(naturals))
	for i, k := range naturals {
		partition[i] = nullSafe(k)
		match[i] = fmt.Sprintf("%s = %s", nullSafe("d."+k), nullSafe("c."+k))
	}

	// One arbitrary attribute payload per tuple; keys are assumed
	// attribute-stable.
	query := fmt.Sprintf(`
		WITH candidates AS (
			SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY id) AS rn
			FROM %s
			WHERE %s IS NOT NULL
		)
		SELECT %s
		FROM candidates c
		WHERE c.rn = 1
		  AND NOT EXISTS (SELECT 1 FROM %s d WHERE %s)`,
		selectCols, strings.Join(partition, ", "),
		s.ref(StagingTable),
		naturals[0],
		selectCols,
		s.ref(d.Table), strings.Join(match, " AND "),
	)

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

	tuples, err := scanTuples(ctx, tx, query, d)
	if err != nil {
		return 0, err
	}

	var inserted int64
	cols := d.columns()
	for chunkStart := 0; chunkStart < len(tuples); chunkStart += insertChunkSize {
		chunk := tuples[chunkStart:min(chunkStart+insertChunkSize, len(tuples))]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(cols))
		for i, t := range chunk {
			placeholders[i] = "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

			parts := make([]string, len(t.naturals))
			for j, n := range t.naturals {
				if n.Valid {
					parts[j] = n.String
				}
			}
			args = append(args, fingerprint.Key(parts...))
			for _, n := range t.naturals {
				args = append(args, n)
			}
			args = append(args, t.attrs...)
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			s.ref(d.Table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", d.Table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true

	s.log.Debug("merged dimension", "table", d.Table, "rows", inserted, "duration", time.Since(start))
	return inserted, nil
}

// nullSafe renders a key column for comparison and grouping with null
// collapsed to the empty string.
func nullSafe(col string) string {
	return fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR), '')", col)
}

type mergeTuple struct {
	naturals []sql.NullString
	attrs    []any
}

func scanTuples(ctx context.Context, tx *sql.Tx, query string, d Dimension) ([]mergeTuple, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select missing %s tuples: %w", d.Table, err)
	}
	defer rows.Close()

	var tuples []mergeTuple
	for rows.Next() {
		t := mergeTuple{
			naturals: make([]sql.NullString, len(d.NaturalKeys)),
			attrs:    make([]any, len(d.Attributes)),
		}
		dest := make([]any, 0, len(t.naturals)+len(t.attrs))
		for i := range t.naturals {
			dest = append(dest, &t.naturals[i])
		}
		for i, def := range d.Attributes {
			switch columnType(def) {
			case "DOUBLE":
				t.attrs[i] = &sql.NullFloat64{}
			case "BIGINT", "INTEGER":
				t.attrs[i] = &sql.NullInt64{}
			default:
				t.attrs[i] = &sql.NullString{}
			}
			dest = append(dest, t.attrs[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s tuple: %w", d.Table, err)
		}
		tuples = append(tuples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s tuples: %w", d.Table, err)
	}
	return tuples, nil
}
