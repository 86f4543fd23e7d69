package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"formintake/config"
	"formintake/core/utils"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "intake.db"),
	}
	logger := utils.NewLogger()
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func strPtr(v string) *string { return &v }

func sampleBatch(token string) *IntakeBatch {
	return &IntakeBatch{
		Checklist:  Checklist{ID: 5, Name: strPtr("Safety")},
		Evaluation: Evaluation{ID: 9, ChecklistID: 5, Type: strPtr("audit")},
		Deliverable: Deliverable{
			ID:           token,
			EvaluationID: 9,
			ChecklistID:  5,
			ReceivedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			FormID:       "form-1",
		},
		Questions: []Question{
			{ID: "q1", EvaluationID: 9, Text: "Q1", Type: "short_text", Order: 0},
			{ID: "q2", EvaluationID: 9, Text: "Q2", Type: "yes_no", Order: 1},
		},
		Answers: []Answer{
			{DeliverableID: token, QuestionID: "q1", EvaluationID: 9, Text: strPtr("hi"), Type: "text"},
		},
	}
}

func TestSaveEventCreatesAllEntities(t *testing.T) {
	db := setupDB(t)
	st := NewIntakeStore(db)
	ctx := context.Background()
	res, err := st.SaveEvent(ctx, sampleBatch("tok1"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !res.DeliverableCreated || res.QuestionsCreated != 2 || res.QuestionsLinked != 2 || res.AnswersInserted != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	ev, err := st.GetEvaluation(ctx, 9)
	if err != nil || ev == nil {
		t.Fatalf("evaluation: %v %v", ev, err)
	}
	if ev.Status != EvaluationStatusInProgress || ev.ChecklistID != 5 {
		t.Fatalf("unexpected evaluation %+v", ev)
	}
	d, err := st.GetDeliverable(ctx, "tok1")
	if err != nil || d == nil {
		t.Fatalf("deliverable: %v %v", d, err)
	}
	if d.EvaluationID != 9 || d.FormID != "form-1" || !d.ReceivedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected deliverable %+v", d)
	}
	qs, _ := st.ListQuestions(ctx, 9)
	if len(qs) != 2 || qs[0].ID != "q1" || qs[1].Order != 1 {
		t.Fatalf("unexpected questions %+v", qs)
	}
}

func TestSaveEventTwiceIsIdempotent(t *testing.T) {
	db := setupDB(t)
	st := NewIntakeStore(db)
	ctx := context.Background()
	if _, err := st.SaveEvent(ctx, sampleBatch("tok1")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	res, err := st.SaveEvent(ctx, sampleBatch("tok1"))
	if err != nil {
		t.Fatalf("second save should be a no-op, got %v", err)
	}
	if res.DeliverableCreated || res.QuestionsCreated != 0 || res.QuestionsLinked != 0 {
		t.Fatalf("second save should not create rows: %+v", res)
	}
	for _, table := range []string{"checklists", "evaluations", "deliverables", "questions", "deliverable_questions"} {
		if n := countRows(t, db, table); table == "questions" || table == "deliverable_questions" {
			if n != 2 {
				t.Fatalf("%s: expected 2 rows, got %d", table, n)
			}
		} else if n != 1 {
			t.Fatalf("%s: expected 1 row, got %d", table, n)
		}
	}
}

func TestSaveEventKeepsExistingState(t *testing.T) {
	db := setupDB(t)
	st := NewIntakeStore(db)
	ctx := context.Background()
	if _, err := st.SaveEvent(ctx, sampleBatch("tok1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.Exec(`UPDATE evaluations SET status='done' WHERE id=9`); err != nil {
		t.Fatalf("update status: %v", err)
	}
	next := sampleBatch("tok2")
	next.Checklist.Name = nil
	next.Evaluation.Type = strPtr("other")
	next.Questions[0].Text = "changed"
	if _, err := st.SaveEvent(ctx, next); err != nil {
		t.Fatalf("save second token: %v", err)
	}
	cl, _ := st.GetChecklist(ctx, 5)
	if cl == nil || cl.Name == nil || *cl.Name != "Safety" {
		t.Fatalf("checklist name must not be downgraded: %+v", cl)
	}
	ev, _ := st.GetEvaluation(ctx, 9)
	if ev.Status != "done" || ev.Type == nil || *ev.Type != "audit" {
		t.Fatalf("evaluation must not be mutated: %+v", ev)
	}
	qs, _ := st.ListQuestions(ctx, 9)
	if qs[0].Text != "Q1" {
		t.Fatalf("first question writer must win, got %q", qs[0].Text)
	}
	if n := countRows(t, db, "deliverable_questions"); n != 4 {
		t.Fatalf("expected links for both deliverables, got %d", n)
	}

	renamed := sampleBatch("tok3")
	renamed.Checklist.Name = strPtr("Safety v2")
	if _, err := st.SaveEvent(ctx, renamed); err != nil {
		t.Fatalf("save renamed: %v", err)
	}
	cl, _ = st.GetChecklist(ctx, 5)
	if *cl.Name != "Safety v2" {
		t.Fatalf("checklist name should refresh, got %q", *cl.Name)
	}
}

func TestSaveEventRollsBackOnFailure(t *testing.T) {
	db := setupDB(t)
	st := NewIntakeStore(db)
	ctx := context.Background()
	if _, err := db.Exec(`CREATE TRIGGER fail_deliverable BEFORE INSERT ON deliverables
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END;`); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	_, err := st.SaveEvent(ctx, sampleBatch("tok1"))
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepDeliverable {
		t.Fatalf("expected deliverable step error, got %v", err)
	}
	for _, table := range []string{"checklists", "evaluations", "deliverables", "questions", "answers"} {
		if n := countRows(t, db, table); n != 0 {
			t.Fatalf("%s: expected rollback, found %d rows", table, n)
		}
	}
}

func TestSaveEventRejectsAnswerForUnknownQuestion(t *testing.T) {
	db := setupDB(t)
	st := NewIntakeStore(db)
	batch := sampleBatch("tok1")
	batch.Answers = append(batch.Answers, Answer{DeliverableID: "tok1", QuestionID: "missing", EvaluationID: 9, Type: "text"})
	_, err := st.SaveEvent(context.Background(), batch)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepAnswer {
		t.Fatalf("expected answer step error, got %v", err)
	}
	if n := countRows(t, db, "deliverables"); n != 0 {
		t.Fatalf("expected rollback, found %d deliverables", n)
	}
}

func TestProcessingLogAppendAndCount(t *testing.T) {
	db := setupDB(t)
	logs := NewProcessingLogStore(db)
	ctx := context.Background()
	for _, status := range []string{ProcessingStatusProcessed, ProcessingStatusError, ProcessingStatusProcessed} {
		if _, err := logs.Append(ctx, &ProcessingLog{DeliverableID: "tok1", Status: status, Message: "m"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	items, err := logs.ListByDeliverable(ctx, "tok1")
	if err != nil || len(items) != 3 {
		t.Fatalf("list: %v %d", err, len(items))
	}
	if items[1].Status != ProcessingStatusError || items[0].ID >= items[1].ID {
		t.Fatalf("unexpected order %+v", items)
	}
	counts, err := logs.CountByStatusBetween(ctx, time.Time{}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[ProcessingStatusProcessed] != 2 || counts[ProcessingStatusError] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestProcessingLogCountExcludesUpperBound(t *testing.T) {
	db := setupDB(t)
	logs := NewProcessingLogStore(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)} {
		if _, err := logs.Append(ctx, &ProcessingLog{DeliverableID: "tok1", LoggedAt: at, Status: ProcessingStatusProcessed}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	first, err := logs.CountByStatusBetween(ctx, base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	second, err := logs.CountByStatusBetween(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if first[ProcessingStatusProcessed] != 1 || second[ProcessingStatusProcessed] != 2 {
		t.Fatalf("adjacent windows must not overlap: first=%+v second=%+v", first, second)
	}
}

type brokenResult struct{}

func (brokenResult) LastInsertId() (int64, error) { return 0, nil }
func (brokenResult) RowsAffected() (int64, error) { return 0, errors.New("rows affected unsupported") }

type brokenResultExec struct{}

func (brokenResultExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return brokenResult{}, nil
}

func (brokenResultExec) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (brokenResultExec) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func TestSaveBatchSurfacesRowsAffectedError(t *testing.T) {
	batch := &IntakeBatch{
		Checklist:   Checklist{ID: 5},
		Evaluation:  Evaluation{ID: 9, ChecklistID: 5},
		Deliverable: Deliverable{ID: "tok1", EvaluationID: 9, ChecklistID: 5, ReceivedAt: time.Now()},
	}
	res, err := saveBatchTx(context.Background(), brokenResultExec{}, batch)
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepDeliverable {
		t.Fatalf("expected deliverable step error, got %v", err)
	}
}

func TestProcessingLogRejectsUnknownStatus(t *testing.T) {
	db := setupDB(t)
	logs := NewProcessingLogStore(db)
	if _, err := logs.Append(context.Background(), &ProcessingLog{DeliverableID: "x", Status: "MAYBE"}); err == nil {
		t.Fatalf("expected check constraint failure")
	}
}

func TestRebind(t *testing.T) {
	got := rebind(true, `SELECT * FROM t WHERE a=? AND b='?' AND c=?`)
	want := `SELECT * FROM t WHERE a=$1 AND b='?' AND c=$2`
	if got != want {
		t.Fatalf("rebind: got %q want %q", got, want)
	}
	if rebind(false, "a=?") != "a=?" {
		t.Fatalf("sqlite queries must be left untouched")
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("/tmp/a.db"); got != "file:/tmp/a.db?"+sqlitePragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := sqliteDSN("file:a.db?mode=rwc"); got != "file:a.db?mode=rwc&"+sqlitePragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
}
