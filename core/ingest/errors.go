package ingest

import (
	"errors"
	"strings"
)

// Error kinds. Only authentication and validation are visible to the sender
// as distinct statuses; everything else is a generic server error.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrReporting      = errors.New("reporting failed")
)

const (
	ErrorCodeInvalidSignature  = "intake.auth.invalid_signature"
	ErrorCodeEmptyBody         = "intake.validation.empty_body"
	ErrorCodeInvalidJSON       = "intake.validation.invalid_json"
	ErrorCodeMissingToken      = "intake.validation.missing_token"
	ErrorCodeMissingResponse   = "intake.validation.missing_form_response"
	ErrorCodeMissingChecklist  = "intake.validation.missing_checklist"
	ErrorCodeInvalidChecklist  = "intake.validation.invalid_checklist"
	ErrorCodeMissingEvaluation = "intake.validation.missing_evaluation"
	ErrorCodeInvalidEvaluation = "intake.validation.invalid_evaluation"
	ErrorCodePersistence       = "intake.persistence"
	ErrorCodeReporting         = "intake.reporting"
)

type Error struct {
	Kind error
	Code string
	// Step is the persistence step that failed, if any.
	Step string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Step != "" {
		b.WriteString(" step=")
		b.WriteString(e.Step)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func validationError(code, detail string) *Error {
	return newError(ErrValidation, code, errors.New(detail))
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
