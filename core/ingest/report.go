package ingest

import (
	"context"
	"time"
	"unicode/utf8"

	"formintake/core/store"
	"formintake/core/utils"
)

const maxReportMessage = 2000

// Reporter writes the outcome trail outside the intake transaction.
// Failures are logged and counted, never returned.
type Reporter struct {
	logs    store.ProcessingLogStore
	logger  *utils.Logger
	metrics *Metrics
	timeout time.Duration
	now     func() time.Time
}

func NewReporter(logs store.ProcessingLogStore, timeout time.Duration, metrics *Metrics, logger *utils.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reporter{
		logs:    logs,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
		now:     utils.NowUTC,
	}
}

func (r *Reporter) Report(ctx context.Context, deliverableID, status, message string) {
	if r == nil || r.logs == nil {
		if r != nil {
			r.metrics.observeReportFailure()
			r.logger.Errorf("report skipped deliverable=%s status=%s: no processing log store", deliverableID, status)
		}
		return
	}
	message = truncateMessage(message, maxReportMessage)
	// the request may already be cancelled; the entry must still land
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	entry := &store.ProcessingLog{
		DeliverableID: deliverableID,
		LoggedAt:      r.now(),
		Status:        status,
		Message:       message,
	}
	if _, err := r.logs.Append(reportCtx, entry); err != nil {
		r.metrics.observeReportFailure()
		r.logger.Errorf("%s deliverable=%s status=%s: %v", ErrorCodeReporting, deliverableID, status, err)
	}
}

func truncateMessage(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	msg = msg[:limit]
	for len(msg) > 0 && !utf8.ValidString(msg) {
		msg = msg[:len(msg)-1]
	}
	return msg
}
