package star

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/veldtlabs/bannerlake/pkg/normalize"
	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

type StoreConfig struct {
	Logger *slog.Logger
	DB     warehouse.DB
}

func (c *StoreConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	return nil
}

// Store executes the star-schema operations against the warehouse.
type Store struct {
	log     *slog.Logger
	db      warehouse.DB
	catalog string
	schema  string
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Store{
		log:     cfg.Logger,
		db:      cfg.DB,
		catalog: cfg.DB.Catalog(),
		schema:  cfg.DB.Schema(),
	}, nil
}

func (s *Store) ref(table string) string {
	return fmt.Sprintf("%s.%s.%s", s.catalog, s.schema, table)
}

// Tables lists every table the store owns, staging first, fact last.
func Tables() []string {
	tables := []string{StagingTable}
	for _, d := range Dimensions {
		tables = append(tables, d.Table)
	}
	tables = append(tables, TimeTable, FactTable)
	return tables
}

// EnsureSchema creates any missing tables. Table schemas are a fixed
// contract; existing tables are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stmts := []string{
		createTableSQL(s.catalog, s.schema, StagingTable, stagingColumns),
		createTableSQL(s.catalog, s.schema, TimeTable, timeColumns),
		createTableSQL(s.catalog, s.schema, FactTable, factColumns),
	}
	for _, d := range Dimensions {
		stmts = append(stmts, d.createSQL(s.catalog, s.schema))
	}

	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.log.Debug("ensured star schema", "catalog", s.catalog, "schema", s.schema, "tables", len(stmts))
	return nil
}

// ReplaceStaging loads the normalized batch into the staging table,
// truncate-and-replace. Returns the number of rows loaded.
func (s *Store) ReplaceStaging(ctx context.Context, rows []normalize.Row) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	return warehouse.ReplaceViaCSV(ctx, s.log, conn, s.ref(StagingTable), columnNames(stagingColumns), len(rows), func(w *csv.Writer, i int) error {
		return w.Write(csvFields(rows[i]))
	})
}

// csvFields formats a staging row in column-contract order. Nil fields map
// to empty CSV fields, which load as NULL.
func csvFields(row normalize.Row) []string {
	return []string{
		fmtInt(row.ID),
		fmtText(row.URL),
		fmtText(row.ElementID),
		fmtText(row.EventName),
		fmtFloat(row.Sentiment),
		fmtText(row.UserNaturalID),
		fmtText(row.Entities),
		fmtText(row.IP),
		fmtText(row.Country),
		fmtText(row.City),
		fmtText(row.IssueTimestampText),
		fmtText(row.BannerName),
		fmtText(row.BannerSize),
		row.UnitName,
		fmtFloat(row.UnitValue),
		fmtText(row.CategoryL1),
		fmtText(row.CategoryL2),
		fmtText(row.CategoryL3),
	}
}

func fmtText(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func fmtInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// TableCount pairs a table name with its current row count.
type TableCount struct {
	Table string
	Rows  int64
}

func (s *Store) Counts(ctx context.Context) ([]TableCount, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	counts := make([]TableCount, 0, len(Tables()))
	for _, table := range Tables() {
		var n int64
		if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.ref(table))).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}
