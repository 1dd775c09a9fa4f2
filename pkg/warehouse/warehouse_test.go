package warehouse_test

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) (warehouse.DB, warehouse.Connection) {
	t.Helper()
	ctx := context.Background()

	db, err := warehouse.New(ctx, warehouse.Config{
		Logger:  testLogger(),
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Catalog: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return db, conn
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		cfg := warehouse.Config{Path: "x.db"}
		require.Error(t, cfg.Validate())
	})

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()
		cfg := warehouse.Config{Logger: testLogger()}
		require.Error(t, cfg.Validate())
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := warehouse.Config{Logger: testLogger(), Path: "x.db"}
		require.NoError(t, cfg.Validate())
		require.Equal(t, "bannerlake", cfg.Catalog)
		require.Equal(t, "main", cfg.Schema)
	})
}

func TestNewRoundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, conn := testDB(t)
	table := fmt.Sprintf("%s.%s.widgets", db.Catalog(), db.Schema())

	_, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (id BIGINT, name VARCHAR)", table))
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?)", table), int64(1), "anvil")
	require.NoError(t, err)

	var name string
	require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf("SELECT name FROM %s WHERE id = ?", table), int64(1)).Scan(&name))
	require.Equal(t, "anvil", name)
}

func TestReplaceViaCSV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, conn := testDB(t)
	table := fmt.Sprintf("%s.%s.events", db.Catalog(), db.Schema())
	columns := []string{"id", "name", "score"}

	_, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (id BIGINT, name VARCHAR, score DOUBLE)", table))
	require.NoError(t, err)

	load := func(rows [][]string) (int64, error) {
		return warehouse.ReplaceViaCSV(ctx, testLogger(), conn, table, columns, len(rows), func(w *csv.Writer, i int) error {
			return w.Write(rows[i])
		})
	}

	count := func() int {
		var n int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n))
		return n
	}

	t.Run("load and replace", func(t *testing.T) {
		n, err := load([][]string{
			{"1", "alpha", "0.5"},
			{"2", "", ""},
			{"3", "gamma", "1.25"},
		})
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
		require.Equal(t, 3, count())

		var name sql.NullString
		var score sql.NullFloat64
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf("SELECT name, score FROM %s WHERE id = 2", table)).Scan(&name, &score))
		require.False(t, name.Valid)
		require.False(t, score.Valid)

		n, err = load([][]string{
			{"7", "delta", "2"},
			{"8", "epsilon", "3"},
		})
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
		require.Equal(t, 2, count())
	})

	t.Run("uncastable batch rolls back", func(t *testing.T) {
		_, err := load([][]string{{"not-a-number", "x", "0"}})
		require.Error(t, err)

		// Previous batch untouched.
		require.Equal(t, 2, count())
	})

	t.Run("empty batch empties the table", func(t *testing.T) {
		n, err := load(nil)
		require.NoError(t, err)
		require.Equal(t, int64(0), n)
		require.Equal(t, 0, count())
	})
}
