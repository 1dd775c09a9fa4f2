package star

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veldtlabs/bannerlake/pkg/warehouse"
)

// Timestamp texts arrive as "YYYY-MM-DD HH:MM:SS" with an optional fraction.
// try_strptime runs the formats in order and yields NULL when neither fits,
// so one malformed date degrades that row's timestamp instead of failing the
// batch.
const parseTimestamp = "try_strptime(s.issue_timestamp_text, ['%Y-%m-%d %H:%M:%S.%f', '%Y-%m-%d %H:%M:%S'])"

// insertFacts promotes staged rows into the fact table. Dimension foreign
// keys resolve by natural-key equality; an unresolved lookup leaves a null
// foreign key. A row qualifies only if its event id is non-null and not
// already present in the fact table, checked against the full table contents.
// Single atomic statement; once inserted, fact rows are permanent.
func (s *Store) insertFacts(ctx context.Context, conn warehouse.Connection) (int64, error) {
	start := time.Now()

	bannerMatch := strings.Join([]string{
		fmt.Sprintf("%s = %s", nullSafe("s.banner_name"), nullSafe("b.banner_name")),
		fmt.Sprintf("%s = %s", nullSafe("s.banner_size"), nullSafe("b.banner_size")),
	}, " AND ")

	query := fmt.Sprintf(`
		INSERT INTO %s (event_id, event_timestamp, time_fk, user_fk, content_fk, banner_fk, location_fk, event_name, unit_name, unit_value, element_id)
		SELECT
			s.id,
			%s AS event_timestamp,
			t.time_sk,
			u.user_sk,
			c.content_sk,
			b.banner_sk,
			l.location_sk,
			s.event_name,
			s.unit_name,
			s.unit_value,
			s.element_id
		FROM %s s
		LEFT JOIN %s u ON s.user_natural_id = u.user_natural_id
		LEFT JOIN %s c ON s.url = c.url
		LEFT JOIN %s b ON %s
		LEFT JOIN %s l ON s.ip = l.ip
		LEFT JOIN %s t ON CAST(%s AS DATE) = t.date
		WHERE s.id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM %s f WHERE f.event_id = s.id)`,
		s.ref(FactTable),
		parseTimestamp,
		s.ref(StagingTable),
		s.ref("dim_user"),
		s.ref("dim_content"),
		s.ref("dim_banner"), bannerMatch,
		s.ref("dim_location"),
		s.ref(TimeTable), parseTimestamp,
		s.ref(FactTable),
	)

	res, err := conn.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("insert facts: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.log.Debug("inserted facts", "table", FactTable, "rows", inserted, "duration", time.Since(start))
	return inserted, nil
}
