package store

import "time"

const (
	EvaluationStatusInProgress = "in progress"

	ProcessingStatusProcessed = "PROCESSED"
	ProcessingStatusError     = "ERROR"
)

type Checklist struct {
	ID   int64
	Name *string
}

type Evaluation struct {
	ID          int64
	ChecklistID int64
	Type        *string
	Status      string
}

type Deliverable struct {
	ID               string
	EvaluationID     int64
	ChecklistID      int64
	ReceivedAt       time.Time
	FormID           string
	RespondentName   *string
	MandatoryComment *string
	OptionalComment  *string
}

type Question struct {
	ID           string
	EvaluationID int64
	Text         string
	Type         string
	Order        int
	Ref          *string
}

type Answer struct {
	ID            int64
	DeliverableID string
	QuestionID    string
	EvaluationID  int64
	Value         *float64
	Text          *string
	Type          string
	Ref           *string
}

type ProcessingLog struct {
	ID            int64
	DeliverableID string
	LoggedAt      time.Time
	Status        string
	Message       string
}

// IntakeBatch is every record extracted from one webhook event.
type IntakeBatch struct {
	Checklist   Checklist
	Evaluation  Evaluation
	Deliverable Deliverable
	Questions   []Question
	Answers     []Answer
}

type SaveResult struct {
	DeliverableCreated bool
	QuestionsCreated   int
	QuestionsLinked    int
	AnswersInserted    int
}

const (
	StepBegin       = "begin"
	StepChecklist   = "checklist"
	StepEvaluation  = "evaluation"
	StepDeliverable = "deliverable"
	StepQuestion    = "question"
	StepLink        = "question_link"
	StepAnswer      = "answer"
	StepCommit      = "commit"
)

// StepError names the persistence step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return "intake " + e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
