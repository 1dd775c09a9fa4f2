package star

import (
	"context"
	"fmt"
	"time"
)

// SeedCalendar fills dim_time with one row per day in [from, to], skipping
// dates already present. The pipeline itself never writes this table; it is
// populated ahead of time so fact rows can resolve their date foreign key.
// time_sk is the date as a YYYYMMDD integer.
func (s *Store) SeedCalendar(ctx context.Context, from, to time.Time) (int64, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("calendar range end %s precedes start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		INSERT INTO %s (time_sk, date, year, quarter, month, day, day_of_week)
		SELECT
			CAST(strftime(d.range, '%%Y%%m%%d') AS BIGINT),
			CAST(d.range AS DATE),
			EXTRACT(year FROM d.range),
			EXTRACT(quarter FROM d.range),
			EXTRACT(month FROM d.range),
			EXTRACT(day FROM d.range),
			EXTRACT(isodow FROM d.range)
		FROM range(DATE '%s', DATE '%s' + INTERVAL 1 DAY, INTERVAL 1 DAY) d
		WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE t.date = CAST(d.range AS DATE))`,
		s.ref(TimeTable),
		from.Format(time.DateOnly), to.Format(time.DateOnly),
		s.ref(TimeTable),
	)

	res, err := conn.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("seed calendar: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.log.Debug("seeded calendar", "from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly), "rows", inserted)
	return inserted, nil
}
