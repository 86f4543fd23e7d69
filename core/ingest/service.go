package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formintake/config"
	"formintake/core/store"
	"formintake/core/utils"
)

type Service struct {
	secret     string
	normalizer *Normalizer
	intake     store.IntakeStore
	reporter   *Reporter
	metrics    *Metrics
	logger     *utils.Logger
}

func NewService(cfg *config.AppConfig, intake store.IntakeStore, reporter *Reporter, metrics *Metrics, logger *utils.Logger) *Service {
	return &Service{
		secret:     cfg.Webhook.Secret,
		normalizer: NewNormalizer(cfg.Ingest),
		intake:     intake,
		reporter:   reporter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Result describes a processed event.
type Result struct {
	DeliverableID string
	Saved         *store.SaveResult
}

// Handle runs one delivery end to end. Returned errors are *Error values
// wrapping ErrAuthentication, ErrValidation or ErrPersistence.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*Result, error) {
	if !Verify(body, signature, s.secret) {
		s.metrics.observeEvent(OutcomeRejected)
		return nil, newError(ErrAuthentication, ErrorCodeInvalidSignature, nil)
	}
	ev, err := s.Normalize(body)
	if err != nil {
		s.metrics.observeEvent(OutcomeInvalid)
		s.logger.Printf("intake rejected: %v", err)
		return nil, err
	}
	saved, err := s.Persist(ctx, ev)
	if err != nil {
		s.metrics.observeEvent(OutcomeFailed)
		s.logger.Errorf("intake failed deliverable=%s: %v", ev.Token, err)
		s.Report(ctx, ev.Token, store.ProcessingStatusError, err.Error())
		return nil, err
	}
	s.metrics.observeEvent(OutcomeProcessed)
	s.Report(ctx, ev.Token, store.ProcessingStatusProcessed, processedMessage(saved))
	return &Result{DeliverableID: ev.Token, Saved: saved}, nil
}

func (s *Service) Normalize(body []byte) (*NormalizedEvent, error) {
	return s.normalizer.Normalize(body)
}

// Persist writes the event in one transaction. A failure rolls back every
// entity written for the event.
func (s *Service) Persist(ctx context.Context, ev *NormalizedEvent) (*store.SaveResult, error) {
	if s.intake == nil {
		return nil, newError(ErrPersistence, ErrorCodePersistence, errors.New("intake store is not configured"))
	}
	start := time.Now()
	saved, err := s.intake.SaveEvent(ctx, ev.Batch())
	s.metrics.observePersist(time.Since(start))
	if err != nil {
		e := newError(ErrPersistence, ErrorCodePersistence, err)
		var stepErr *store.StepError
		if errors.As(err, &stepErr) {
			e.Step = stepErr.Step
			e.Err = stepErr.Err
		}
		return nil, e
	}
	return saved, nil
}

func (s *Service) Report(ctx context.Context, deliverableID, status, message string) {
	if s.reporter == nil {
		s.metrics.observeReportFailure()
		s.logger.Errorf("report skipped deliverable=%s status=%s: no reporter", deliverableID, status)
		return
	}
	s.reporter.Report(ctx, deliverableID, status, message)
}

func processedMessage(saved *store.SaveResult) string {
	if saved == nil {
		return "processed"
	}
	return fmt.Sprintf("processed deliverable_created=%t questions_created=%d questions_linked=%d answers=%d",
		saved.DeliverableCreated, saved.QuestionsCreated, saved.QuestionsLinked, saved.AnswersInserted)
}
