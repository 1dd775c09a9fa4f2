package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/veldtlabs/bannerlake/pkg/normalize"
	"github.com/veldtlabs/bannerlake/pkg/pipeline"
	"github.com/veldtlabs/bannerlake/pkg/star"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	records  []normalize.Record
	fetchErr error

	archiveErr   error
	archiveCalls int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]normalize.Record, error) {
	return f.records, f.fetchErr
}

func (f *fakeSource) Archive(ctx context.Context) error {
	f.archiveCalls++
	return f.archiveErr
}

type fakeStore struct {
	stagedRows   []normalize.Row
	replaceErr   error
	reconcileErr error
	reconciles   int
}

func (f *fakeStore) ReplaceStaging(ctx context.Context, rows []normalize.Row) (int64, error) {
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	f.stagedRows = rows
	return int64(len(rows)), nil
}

func (f *fakeStore) Reconcile(ctx context.Context) (*star.Report, error) {
	f.reconciles++
	if f.reconcileErr != nil {
		return nil, f.reconcileErr
	}
	return &star.Report{Steps: []star.StepResult{
		{Step: "dim_user", RowsInserted: 1},
		{Step: star.FactTable, RowsInserted: 2},
	}}, nil
}

func newPipeline(t *testing.T, src *fakeSource, store *fakeStore, archive bool) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		Logger:           testLogger(),
		Store:            store,
		Source:           src,
		ArchiveOnSuccess: archive,
	})
	require.NoError(t, err)
	return p
}

func TestPipeline_Run_SequencesSteps(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []normalize.Record{
		{"ID": "101", "Event_Name": "dwell"},
		{"ID": "102", "Event_Name": "scroll"},
	}}
	store := &fakeStore{}

	report, err := newPipeline(t, src, store, true).Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	require.Equal(t, 2, report.Fetched)
	require.Equal(t, int64(2), report.Staged)
	require.Len(t, report.Steps, 2)
	require.Equal(t, int64(2), report.Steps[1].RowsInserted)
	require.True(t, report.Archived)
	require.Equal(t, 1, src.archiveCalls)
	require.Len(t, store.stagedRows, 2)
}

func TestPipeline_Run_EmptyFetchIsNoOp(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	store := &fakeStore{}

	report, err := newPipeline(t, src, store, true).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Fetched)
	require.Zero(t, store.reconciles, "nothing to process must leave the warehouse untouched")
	require.Zero(t, src.archiveCalls)
}

func TestPipeline_Run_FetchFailureAborts(t *testing.T) {
	t.Parallel()

	src := &fakeSource{fetchErr: fmt.Errorf("connection refused")}
	store := &fakeStore{}

	_, err := newPipeline(t, src, store, false).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "fetch:")
	require.Zero(t, store.reconciles)
}

func TestPipeline_Run_ReconcileFailureSkipsArchive(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []normalize.Record{{"ID": "101"}}}
	store := &fakeStore{reconcileErr: fmt.Errorf("reconcile step 3 (dim_banner): constraint violation")}

	_, err := newPipeline(t, src, store, true).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "dim_banner")
	require.Zero(t, src.archiveCalls, "archive must not run after a failed reconcile")
}

func TestPipeline_Run_ArchiveFailureFailsRun(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		records:    []normalize.Record{{"ID": "101"}},
		archiveErr: fmt.Errorf("access denied"),
	}

	report, err := newPipeline(t, src, &fakeStore{}, true).Run(context.Background())
	require.Error(t, err)
	require.False(t, report.Archived)
}

func TestPoller_RunsImmediatelyThenOnTicks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	clock := clockwork.NewFakeClock()

	poller, err := pipeline.NewPoller(pipeline.PollerConfig{
		Logger:   testLogger(),
		Clock:    clock,
		Interval: time.Minute,
		Pipeline: runnerFunc(func(ctx context.Context) (*pipeline.Report, error) {
			runs.Add(1)
			return &pipeline.Report{}, nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = poller.Run(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestPoller_RunFailureKeepsLoopAlive(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	clock := clockwork.NewFakeClock()

	poller, err := pipeline.NewPoller(pipeline.PollerConfig{
		Logger:   testLogger(),
		Clock:    clock,
		Interval: time.Minute,
		Pipeline: runnerFunc(func(ctx context.Context) (*pipeline.Report, error) {
			runs.Add(1)
			return nil, fmt.Errorf("source unavailable")
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = poller.Run(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

type runnerFunc func(ctx context.Context) (*pipeline.Report, error)

func (f runnerFunc) Run(ctx context.Context) (*pipeline.Report, error) { return f(ctx) }
