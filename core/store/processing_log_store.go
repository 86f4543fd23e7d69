package store

import (
	"context"
	"database/sql"
	"time"
)

// ProcessingLogStore is the append-only outcome trail. It always runs on the
// pool, never inside an intake transaction.
type ProcessingLogStore interface {
	Append(ctx context.Context, entry *ProcessingLog) (int64, error)
	ListByDeliverable(ctx context.Context, deliverableID string) ([]ProcessingLog, error)
	// CountByStatusBetween counts entries logged in [since, until).
	CountByStatusBetween(ctx context.Context, since, until time.Time) (map[string]int, error)
}

type processingLogStore struct {
	db       *sql.DB
	postgres bool
}

func NewProcessingLogStore(db *sql.DB) ProcessingLogStore {
	return &processingLogStore{db: db, postgres: isPostgresDB(db)}
}

func (s *processingLogStore) q() boundExec {
	return boundExec{inner: s.db, postgres: s.postgres}
}

func (s *processingLogStore) Append(ctx context.Context, entry *ProcessingLog) (int64, error) {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}
	var id int64
	err := s.q().QueryRowContext(ctx, `
		INSERT INTO processing_logs(deliverable_id, logged_at, status, message)
		VALUES(?,?,?,?)
		RETURNING id`,
		entry.DeliverableID, entry.LoggedAt.UTC(), entry.Status, entry.Message).Scan(&id)
	if err != nil {
		return 0, err
	}
	entry.ID = id
	return id, nil
}

func (s *processingLogStore) ListByDeliverable(ctx context.Context, deliverableID string) ([]ProcessingLog, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT id, deliverable_id, logged_at, status, message
		FROM processing_logs WHERE deliverable_id=? ORDER BY id ASC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProcessingLog
	for rows.Next() {
		var l ProcessingLog
		if err := rows.Scan(&l.ID, &l.DeliverableID, &l.LoggedAt, &l.Status, &l.Message); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (s *processingLogStore) CountByStatusBetween(ctx context.Context, since, until time.Time) (map[string]int, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT status, COUNT(*) FROM processing_logs
		WHERE logged_at >= ? AND logged_at < ?
		GROUP BY status`, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{
		ProcessingStatusProcessed: 0,
		ProcessingStatusError:     0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}
