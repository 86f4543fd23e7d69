package appbootstrap

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"formintake/api"
	"formintake/config"
	"formintake/core/ingest"
	"formintake/core/store"
	"formintake/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	registry   *prometheus.Registry
	summary    *ingest.SummaryJob
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ingest.NewMetrics(registry)

	intake := store.NewIntakeStore(db)
	logs := store.NewProcessingLogStore(db)
	reporter := ingest.NewReporter(logs, cfg.EffectiveReportTimeout(), metrics, logger)
	svc := ingest.NewService(cfg, intake, reporter, metrics, logger)

	var workers []api.BackgroundWorker
	var summary *ingest.SummaryJob
	if cfg.Summary.Enabled {
		summary = ingest.NewSummaryJob(cfg.Summary, logs, metrics, logger)
		workers = append(workers, summary)
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Intake:  svc,
			DB:      db,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			HTTP:    api.NewHTTPMetrics(registry),
			Workers: workers,
		},
		registry: registry,
		summary:  summary,
	}, nil
}
