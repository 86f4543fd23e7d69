package appbootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"formintake/config"
	"formintake/core/store"
	"formintake/core/utils"
)

func TestComposeRuntimeWiresSummaryWorker(t *testing.T) {
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "compose.db"),
		Webhook:  config.WebhookConfig{Secret: "s", Path: "/webhook"},
		Summary:  config.SummaryConfig{Enabled: true, Schedule: "@every 1h"},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if rt.summary == nil || len(rt.serverDeps.Workers) != 1 {
		t.Fatalf("expected summary worker, got %+v", rt.serverDeps.Workers)
	}
	if rt.serverDeps.Intake == nil || rt.serverDeps.Metrics == nil || rt.serverDeps.HTTP == nil {
		t.Fatalf("server deps not wired")
	}
	families, err := rt.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected registered collectors")
	}

	cfg.Summary.Enabled = false
	rt, err = composeRuntime(cfg, db, logger)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if rt.summary != nil || len(rt.serverDeps.Workers) != 0 {
		t.Fatalf("summary must be off when disabled")
	}
}

func TestRunFailsWithoutSecret(t *testing.T) {
	t.Setenv("FORMINTAKE_WEBHOOK_SECRET", "")
	t.Setenv("FORMINTAKE_DB_DRIVER", "sqlite")
	t.Setenv("FORMINTAKE_DB_URL", filepath.Join(t.TempDir(), "run.db"))
	if err := Run(context.Background(), "", utils.NewLogger()); err == nil {
		t.Fatalf("expected config error")
	}
}
