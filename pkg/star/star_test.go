package star_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/bannerlake/pkg/fingerprint"
	"github.com/veldtlabs/bannerlake/pkg/normalize"
	"github.com/veldtlabs/bannerlake/pkg/star"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) (*star.Store, warehouse.Connection, string) {
	t.Helper()
	ctx := context.Background()

	db, err := warehouse.New(ctx, warehouse.Config{
		Logger:  testLogger(),
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Catalog: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := star.NewStore(star.StoreConfig{Logger: testLogger(), DB: db})
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return store, conn, fmt.Sprintf("%s.%s", db.Catalog(), db.Schema())
}

func baseRecord(id string) normalize.Record {
	return normalize.Record{
		"ID":            id,
		"URL":           "https://example.com/article",
		"Element_ID":    "cta-1",
		"Event_Name":    "dwell",
		"Sentiment":     "0.82",
		"Unity_User_ID": "u-9001",
		"Entities":      "acme",
		"IP":            "203.0.113.7",
		"Country":       "usa",
		"City":          "new york",
		"Date":          "2024-03-01 12:30:45",
		"Banner_ID":     "sidebar_ad_300x250",
		"Category":      "/News/World/Europe/",
		"Amount":        "12.5",
	}
}

func stage(t *testing.T, store *star.Store, records []normalize.Record) {
	t.Helper()
	n, err := store.ReplaceStaging(context.Background(), normalize.Batch(records))
	require.NoError(t, err)
	require.Equal(t, int64(len(records)), n)
}

func tableCount(t *testing.T, conn warehouse.Connection, qualified string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.QueryRowContext(context.Background(), fmt.Sprintf("SELECT count(*) FROM %s", qualified)).Scan(&n))
	return n
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, conn, prefix := testStore(t)

	// Second call is a no-op against existing tables.
	require.NoError(t, store.EnsureSchema(ctx))

	for _, table := range star.Tables() {
		require.Equal(t, int64(0), tableCount(t, conn, prefix+"."+table))
	}
}

func TestReplaceStaging(t *testing.T) {
	t.Parallel()

	store, conn, prefix := testStore(t)
	staging := prefix + "." + star.StagingTable

	stage(t, store, []normalize.Record{baseRecord("1"), baseRecord("2"), baseRecord("3")})
	require.Equal(t, int64(3), tableCount(t, conn, staging))

	// Next batch fully replaces the previous one.
	stage(t, store, []normalize.Record{baseRecord("4")})
	require.Equal(t, int64(1), tableCount(t, conn, staging))
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("populates dimensions and facts", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		other := baseRecord("102")
		other["Unity_User_ID"] = "u-9002"
		noBanner := baseRecord("103")
		delete(noBanner, "Banner_ID")

		stage(t, store, []normalize.Record{baseRecord("101"), other, noBanner})

		report, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Len(t, report.Steps, 5)
		require.Equal(t, "dim_user", report.Steps[0].Step)
		require.Equal(t, int64(2), report.Steps[0].RowsInserted)
		require.Equal(t, star.FactTable, report.Steps[4].Step)
		require.Equal(t, int64(3), report.Steps[4].RowsInserted)
		require.Equal(t, int64(3), report.FactRows())

		require.Equal(t, int64(2), tableCount(t, conn, prefix+".dim_user"))
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_location"))
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_banner"))
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_content"))
		require.Equal(t, int64(3), tableCount(t, conn, prefix+".fact_events"))

		// Surrogate keys are the fingerprints of the natural keys.
		var userSK int64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT user_sk FROM %s.dim_user WHERE user_natural_id = 'u-9001'", prefix)).Scan(&userSK))
		require.Equal(t, fingerprint.Key("u-9001"), userSK)

		var bannerSK int64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT banner_sk FROM %s.dim_banner WHERE banner_name = 'sidebar_ad'", prefix)).Scan(&bannerSK))
		require.Equal(t, fingerprint.Key("sidebar_ad", "300x250"), bannerSK)

		// Foreign keys resolve by natural key; the record without a banner
		// keeps a null banner_fk.
		var userFK, bannerFK sql.NullInt64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT user_fk, banner_fk FROM %s.fact_events WHERE event_id = 101", prefix)).Scan(&userFK, &bannerFK))
		require.True(t, userFK.Valid)
		require.Equal(t, fingerprint.Key("u-9001"), userFK.Int64)
		require.True(t, bannerFK.Valid)

		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT user_fk, banner_fk FROM %s.fact_events WHERE event_id = 103", prefix)).Scan(&userFK, &bannerFK))
		require.True(t, userFK.Valid)
		require.False(t, bannerFK.Valid)
	})

	t.Run("repeated run inserts nothing", func(t *testing.T) {
		t.Parallel()
		store, _, _ := testStore(t)

		stage(t, store, []normalize.Record{baseRecord("101"), baseRecord("102")})

		_, err := store.Reconcile(ctx)
		require.NoError(t, err)

		report, err := store.Reconcile(ctx)
		require.NoError(t, err)
		for _, step := range report.Steps {
			require.Zero(t, step.RowsInserted, "step %s inserted rows on rerun", step.Step)
		}
	})

	t.Run("null banner size matches empty string entry", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		// A prior deployment stored the sizeless banner with an empty string.
		_, err := conn.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s.dim_banner (banner_sk, banner_name, banner_size) VALUES (?, ?, ?)", prefix),
			fingerprint.Key("header_banner", ""), "header_banner", "")
		require.NoError(t, err)

		rec := baseRecord("201")
		rec["Banner_ID"] = "header_banner"
		stage(t, store, []normalize.Record{rec})

		report, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, "dim_banner", report.Steps[2].Step)
		require.Zero(t, report.Steps[2].RowsInserted)
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_banner"))

		// The staged row still resolves to that entry.
		var bannerFK sql.NullInt64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT banner_fk FROM %s.fact_events WHERE event_id = 201", prefix)).Scan(&bannerFK))
		require.True(t, bannerFK.Valid)
		require.Equal(t, fingerprint.Key("header_banner", ""), bannerFK.Int64)
	})

	t.Run("fact ids already present are skipped", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		// Event 102 was committed by an earlier run.
		_, err := conn.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s.fact_events (event_id, event_name) VALUES (?, ?)", prefix),
			int64(102), "dwell")
		require.NoError(t, err)

		stage(t, store, []normalize.Record{baseRecord("101"), baseRecord("102"), baseRecord("103")})

		report, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), report.FactRows())
		require.Equal(t, int64(3), tableCount(t, conn, prefix+".fact_events"))

		var n int64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT count(*) FROM %s.fact_events WHERE event_id = 102", prefix)).Scan(&n))
		require.Equal(t, int64(1), n)
	})

	t.Run("rows without an event id never reach the fact table", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		rec := baseRecord("301")
		delete(rec, "ID")
		stage(t, store, []normalize.Record{rec})

		_, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(0), tableCount(t, conn, prefix+".fact_events"))
		// Its dimensions still merge.
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_user"))
	})

	t.Run("malformed timestamp degrades to null without aborting", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		require.NoError(t, store.EnsureSchema(ctx))
		_, err := store.SeedCalendar(ctx,
			time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		bad := baseRecord("402")
		bad["Date"] = "not-a-date"
		stage(t, store, []normalize.Record{baseRecord("401"), bad})

		report, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), report.FactRows())

		var ts sql.NullTime
		var timeFK sql.NullInt64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT event_timestamp, time_fk FROM %s.fact_events WHERE event_id = 401", prefix)).Scan(&ts, &timeFK))
		require.True(t, ts.Valid)
		require.Equal(t, time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC), ts.Time.UTC())
		require.True(t, timeFK.Valid)
		require.Equal(t, int64(20240301), timeFK.Int64)

		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT event_timestamp, time_fk FROM %s.fact_events WHERE event_id = 402", prefix)).Scan(&ts, &timeFK))
		require.False(t, ts.Valid)
		require.False(t, timeFK.Valid)
	})

	t.Run("fractional seconds parse", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		rec := baseRecord("501")
		rec["Date"] = "2024-03-01 12:30:45.123456"
		stage(t, store, []normalize.Record{rec})

		_, err := store.Reconcile(ctx)
		require.NoError(t, err)

		var ts sql.NullTime
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT event_timestamp FROM %s.fact_events WHERE event_id = 501", prefix)).Scan(&ts))
		require.True(t, ts.Valid)
		require.Equal(t, time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC), ts.Time.UTC())
	})

	t.Run("content attributes come from one staging row per url", func(t *testing.T) {
		t.Parallel()
		store, conn, prefix := testStore(t)

		a := baseRecord("601")
		b := baseRecord("602")
		b["Sentiment"] = "-0.4"
		stage(t, store, []normalize.Record{a, b})

		_, err := store.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), tableCount(t, conn, prefix+".dim_content"))

		var contentSK int64
		require.NoError(t, conn.QueryRowContext(ctx,
			fmt.Sprintf("SELECT content_sk FROM %s.dim_content", prefix)).Scan(&contentSK))
		require.Equal(t, fingerprint.Key("https://example.com/article"), contentSK)
	})
}

func TestSeedCalendar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, conn, prefix := testStore(t)

	from := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

	n, err := store.SeedCalendar(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	// Reseeding the same range adds nothing.
	n, err = store.SeedCalendar(ctx, from, to)
	require.NoError(t, err)
	require.Zero(t, n)

	// Overlapping range adds only the new days.
	n, err = store.SeedCalendar(ctx, from, to.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	var year, quarter, month, day, dow int
	require.NoError(t, conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT year, quarter, month, day, day_of_week FROM %s.dim_time WHERE time_sk = 20240301", prefix)).
		Scan(&year, &quarter, &month, &day, &dow))
	require.Equal(t, 2024, year)
	require.Equal(t, 1, quarter)
	require.Equal(t, 3, month)
	require.Equal(t, 1, day)
	require.Equal(t, 5, dow) // 2024-03-01 is a Friday

	_, err = store.SeedCalendar(ctx, to, from)
	require.Error(t, err)
}

func TestCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, _, _ := testStore(t)

	stage(t, store, []normalize.Record{baseRecord("1"), baseRecord("2")})
	_, err := store.Reconcile(ctx)
	require.NoError(t, err)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)

	byTable := make(map[string]int64, len(counts))
	for _, c := range counts {
		byTable[c.Table] = c.Rows
	}
	require.Equal(t, int64(2), byTable[star.StagingTable])
	require.Equal(t, int64(1), byTable["dim_user"])
	require.Equal(t, int64(2), byTable[star.FactTable])
}
