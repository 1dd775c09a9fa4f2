package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bannerlake_pipeline_build_info",
		Help: "Build information of the bannerlake pipeline",
	}, []string{"version", "commit", "date"})

	RunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bannerlake_pipeline_runs_total", Help: "Pipeline run outcomes.",
	}, []string{"result"})
	RunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bannerlake_pipeline_last_run_duration_seconds", Help: "Duration of the most recent pipeline run.",
	})

	RecordsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bannerlake_pipeline_records_fetched_total", Help: "Raw records fetched from the event source.",
	})
	RowsStaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bannerlake_pipeline_rows_staged_total", Help: "Normalized rows loaded into the staging table.",
	})
	RowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bannerlake_pipeline_rows_inserted_total", Help: "Rows inserted per warehouse table by reconcile steps.",
	}, []string{"table"})

	TriggerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bannerlake_pipeline_trigger_outcomes_total", Help: "HTTP run trigger outcomes.",
	}, []string{"result"})
)
