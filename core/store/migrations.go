package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"formintake/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var gooseMigrations embed.FS

// sqliteMigrations mirrors migrations/*.sql for local and test databases.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS checklists (
		id INTEGER PRIMARY KEY,
		name TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY,
		checklist_id INTEGER NOT NULL,
		evaluation_type TEXT,
		status TEXT NOT NULL DEFAULT 'in progress',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(checklist_id) REFERENCES checklists(id)
	);`,
	`CREATE TABLE IF NOT EXISTS deliverables (
		id TEXT PRIMARY KEY,
		evaluation_id INTEGER NOT NULL,
		checklist_id INTEGER NOT NULL,
		received_at TIMESTAMP NOT NULL,
		form_id TEXT NOT NULL DEFAULT '',
		respondent_name TEXT,
		mandatory_comment TEXT,
		optional_comment TEXT,
		FOREIGN KEY(evaluation_id) REFERENCES evaluations(id),
		FOREIGN KEY(checklist_id) REFERENCES checklists(id)
	);`,
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT NOT NULL,
		evaluation_id INTEGER NOT NULL,
		question_text TEXT NOT NULL DEFAULT '',
		question_type TEXT NOT NULL DEFAULT '',
		order_index INTEGER NOT NULL DEFAULT 0,
		ref TEXT,
		PRIMARY KEY (id, evaluation_id),
		FOREIGN KEY(evaluation_id) REFERENCES evaluations(id)
	);`,
	`CREATE TABLE IF NOT EXISTS deliverable_questions (
		deliverable_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		evaluation_id INTEGER NOT NULL,
		PRIMARY KEY (deliverable_id, question_id, evaluation_id),
		FOREIGN KEY(deliverable_id) REFERENCES deliverables(id),
		FOREIGN KEY(question_id, evaluation_id) REFERENCES questions(id, evaluation_id)
	);`,
	`CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deliverable_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		evaluation_id INTEGER NOT NULL,
		value REAL,
		answer_text TEXT,
		answer_type TEXT NOT NULL DEFAULT '',
		ref TEXT,
		FOREIGN KEY(deliverable_id) REFERENCES deliverables(id),
		FOREIGN KEY(question_id, evaluation_id) REFERENCES questions(id, evaluation_id)
	);`,
	`CREATE TABLE IF NOT EXISTS processing_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deliverable_id TEXT NOT NULL,
		logged_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PROCESSED', 'ERROR')),
		message TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_evaluations_checklist ON evaluations(checklist_id);`,
	`CREATE INDEX IF NOT EXISTS idx_deliverables_evaluation ON deliverables(evaluation_id);`,
	`CREATE INDEX IF NOT EXISTS idx_answers_deliverable ON answers(deliverable_id);`,
	`CREATE INDEX IF NOT EXISTS idx_processing_logs_deliverable ON processing_logs(deliverable_id, logged_at);`,
	`CREATE INDEX IF NOT EXISTS idx_processing_logs_logged ON processing_logs(logged_at);`,
}

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if isPostgresDB(db) {
		return applyGooseMigrations(ctx, db, logger)
	}
	return applySQLiteMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(gooseMigrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied")
	}
	return nil
}

// gooseLogger routes goose output through the process logger.
type gooseLogger struct {
	logger *utils.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.logger.Printf("goose: "+format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.logger.Errorf("goose: "+format, v...)
}
