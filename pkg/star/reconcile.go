package star

import (
	"context"
	"fmt"
	"time"
)

// StepResult reports one reconcile step: the four dimension merges and the
// fact insert, in execution order.
type StepResult struct {
	Step         string        `json:"step"`
	RowsInserted int64         `json:"rows_inserted"`
	Duration     time.Duration `json:"duration"`
}

// Report is the outcome of one full reconcile pass.
type Report struct {
	Steps []StepResult `json:"steps"`
}

// FactRows returns the number of fact rows the pass inserted.
func (r *Report) FactRows() int64 {
	for _, s := range r.Steps {
		if s.Step == FactTable {
			return s.RowsInserted
		}
	}
	return 0
}

// Reconcile promotes the current staging contents into the star schema: each
// dimension merge runs first, then the fact insert, which needs every
// dimension to be current. Any step failure aborts the pass; the error names
// the failing step and its position. Completed steps stay applied, which is
// safe to re-run because every step inserts only what is missing.
func (s *Store) Reconcile(ctx context.Context) (*Report, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	type step struct {
		name string
		run  func(context.Context) (int64, error)
	}

	steps := make([]step, 0, len(Dimensions)+1)
	for _, d := range Dimensions {
		steps = append(steps, step{name: d.Table, run: func(ctx context.Context) (int64, error) {
			return s.mergeDimension(ctx, conn, d)
		}})
	}
	steps = append(steps, step{name: FactTable, run: func(ctx context.Context) (int64, error) {
		return s.insertFacts(ctx, conn)
	}})

	report := &Report{Steps: make([]StepResult, 0, len(steps))}
	for i, st := range steps {
		s.log.Debug("executing reconcile step", "step", i+1, "name", st.name)
		start := time.Now()
		rows, err := st.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconcile step %d (%s): %w", i+1, st.name, err)
		}
		report.Steps = append(report.Steps, StepResult{
			Step:         st.name,
			RowsInserted: rows,
			Duration:     time.Since(start),
		})
	}
	return report, nil
}
