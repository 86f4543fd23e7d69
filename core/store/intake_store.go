package store

import (
	"context"
	"database/sql"
	"fmt"
)

type IntakeStore interface {
	SaveEvent(ctx context.Context, batch *IntakeBatch) (*SaveResult, error)
	GetChecklist(ctx context.Context, id int64) (*Checklist, error)
	GetEvaluation(ctx context.Context, id int64) (*Evaluation, error)
	GetDeliverable(ctx context.Context, id string) (*Deliverable, error)
	ListQuestions(ctx context.Context, evaluationID int64) ([]Question, error)
	ListAnswers(ctx context.Context, deliverableID string) ([]Answer, error)
}

type intakeStore struct {
	db       *sql.DB
	postgres bool
}

func NewIntakeStore(db *sql.DB) IntakeStore {
	return &intakeStore{db: db, postgres: isPostgresDB(db)}
}

// SaveEvent writes the batch in one transaction, parents first.
// Existing rows are left alone except for a refreshed checklist name.
func (s *intakeStore) SaveEvent(ctx context.Context, batch *IntakeBatch) (*SaveResult, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StepError{Step: StepBegin, Err: err}
	}
	tx := boundExec{inner: sqlTx, postgres: s.postgres}
	res, err := saveBatchTx(ctx, tx, batch)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, &StepError{Step: StepCommit, Err: err}
	}
	return res, nil
}

func saveBatchTx(ctx context.Context, tx execer, batch *IntakeBatch) (*SaveResult, error) {
	res := &SaveResult{}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checklists(id, name) VALUES(?, ?)
		ON CONFLICT (id) DO UPDATE SET name=COALESCE(excluded.name, checklists.name)`,
		batch.Checklist.ID, nullableString(batch.Checklist.Name)); err != nil {
		return nil, &StepError{Step: StepChecklist, Err: err}
	}

	status := batch.Evaluation.Status
	if status == "" {
		status = EvaluationStatusInProgress
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO evaluations(id, checklist_id, evaluation_type, status) VALUES(?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
		batch.Evaluation.ID, batch.Evaluation.ChecklistID, nullableString(batch.Evaluation.Type), status); err != nil {
		return nil, &StepError{Step: StepEvaluation, Err: err}
	}

	d := batch.Deliverable
	created, err := execAffected(ctx, tx, `
		INSERT INTO deliverables(id, evaluation_id, checklist_id, received_at, form_id, respondent_name, mandatory_comment, optional_comment)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.EvaluationID, d.ChecklistID, d.ReceivedAt.UTC(), d.FormID,
		nullableString(d.RespondentName), nullableString(d.MandatoryComment), nullableString(d.OptionalComment))
	if err != nil {
		return nil, &StepError{Step: StepDeliverable, Err: err}
	}
	res.DeliverableCreated = created > 0

	for _, q := range batch.Questions {
		n, err := execAffected(ctx, tx, `
			INSERT INTO questions(id, evaluation_id, question_text, question_type, order_index, ref)
			VALUES(?,?,?,?,?,?)
			ON CONFLICT (id, evaluation_id) DO NOTHING`,
			q.ID, q.EvaluationID, q.Text, q.Type, q.Order, nullableString(q.Ref))
		if err != nil {
			return nil, &StepError{Step: StepQuestion, Err: err}
		}
		res.QuestionsCreated += int(n)
		n, err = execAffected(ctx, tx, `
			INSERT INTO deliverable_questions(deliverable_id, question_id, evaluation_id)
			VALUES(?,?,?)
			ON CONFLICT (deliverable_id, question_id, evaluation_id) DO NOTHING`,
			d.ID, q.ID, q.EvaluationID)
		if err != nil {
			return nil, &StepError{Step: StepLink, Err: err}
		}
		res.QuestionsLinked += int(n)
	}

	for _, a := range batch.Answers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO answers(deliverable_id, question_id, evaluation_id, value, answer_text, answer_type, ref)
			VALUES(?,?,?,?,?,?,?)`,
			a.DeliverableID, a.QuestionID, a.EvaluationID, nullableFloat(a.Value), nullableString(a.Text), a.Type, nullableString(a.Ref)); err != nil {
			return nil, &StepError{Step: StepAnswer, Err: err}
		}
		res.AnswersInserted++
	}
	return res, nil
}

func execAffected(ctx context.Context, tx execer, query string, args ...any) (int64, error) {
	r, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *intakeStore) q() boundExec {
	return boundExec{inner: s.db, postgres: s.postgres}
}

func (s *intakeStore) GetChecklist(ctx context.Context, id int64) (*Checklist, error) {
	var c Checklist
	var name sql.NullString
	err := s.q().QueryRowContext(ctx, `SELECT id, name FROM checklists WHERE id=?`, id).Scan(&c.ID, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Name = stringPtr(name)
	return &c, nil
}

func (s *intakeStore) GetEvaluation(ctx context.Context, id int64) (*Evaluation, error) {
	var e Evaluation
	var typ sql.NullString
	err := s.q().QueryRowContext(ctx, `SELECT id, checklist_id, evaluation_type, status FROM evaluations WHERE id=?`, id).
		Scan(&e.ID, &e.ChecklistID, &typ, &e.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Type = stringPtr(typ)
	return &e, nil
}

func (s *intakeStore) GetDeliverable(ctx context.Context, id string) (*Deliverable, error) {
	var d Deliverable
	var name, mandatory, optional sql.NullString
	err := s.q().QueryRowContext(ctx, `
		SELECT id, evaluation_id, checklist_id, received_at, form_id, respondent_name, mandatory_comment, optional_comment
		FROM deliverables WHERE id=?`, id).
		Scan(&d.ID, &d.EvaluationID, &d.ChecklistID, &d.ReceivedAt, &d.FormID, &name, &mandatory, &optional)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.RespondentName = stringPtr(name)
	d.MandatoryComment = stringPtr(mandatory)
	d.OptionalComment = stringPtr(optional)
	return &d, nil
}

func (s *intakeStore) ListQuestions(ctx context.Context, evaluationID int64) ([]Question, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT id, evaluation_id, question_text, question_type, order_index, ref
		FROM questions WHERE evaluation_id=? ORDER BY order_index ASC, id ASC`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Question
	for rows.Next() {
		var q Question
		var ref sql.NullString
		if err := rows.Scan(&q.ID, &q.EvaluationID, &q.Text, &q.Type, &q.Order, &ref); err != nil {
			return nil, err
		}
		q.Ref = stringPtr(ref)
		res = append(res, q)
	}
	return res, rows.Err()
}

func (s *intakeStore) ListAnswers(ctx context.Context, deliverableID string) ([]Answer, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT id, deliverable_id, question_id, evaluation_id, value, answer_text, answer_type, ref
		FROM answers WHERE deliverable_id=? ORDER BY id ASC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Answer
	for rows.Next() {
		var a Answer
		var value sql.NullFloat64
		var text, ref sql.NullString
		if err := rows.Scan(&a.ID, &a.DeliverableID, &a.QuestionID, &a.EvaluationID, &value, &text, &a.Type, &ref); err != nil {
			return nil, err
		}
		a.Value = floatPtr(value)
		a.Text = stringPtr(text)
		a.Ref = stringPtr(ref)
		res = append(res, a)
	}
	return res, rows.Err()
}
