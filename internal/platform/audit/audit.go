// Package audit records who touched which patient's booking data. Every entry
// is emitted as a structured log event and, when a database is configured,
// written to the access_audit table.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/db"
	"github.com/gpbook/gpbook/internal/platform/nhsnumber"
)

// Actions.
const (
	ActionAvailabilitySearch = "availability.search"
	ActionBookingCreate      = "booking.create"
	ActionBookingRead        = "booking.read"
	ActionBookingCancel      = "booking.cancel"
)

// Outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeFailure  = "failure"
)

// Entry is a single access record. PatientID may be the full identifier; it
// is masked before it is logged or stored.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	TraceID      string    `json:"trace_id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	PracticeCode string    `json:"practice_code"`
	PatientID    string    `json:"patient"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Store persists entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
}

// Recorder is what the booking workflow depends on.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Logger writes entries to the log and to an optional Store. Store failures
// are logged and never reach the caller.
type Logger struct {
	store  Store
	logger zerolog.Logger
}

// NewLogger creates a Logger. store may be nil.
func NewLogger(store Store, logger zerolog.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if e.PatientID != "" {
		e.PatientID = nhsnumber.Mask(e.PatientID)
	}

	evt := l.logger.Info()
	if e.Outcome == OutcomeFailure {
		evt = l.logger.Warn()
	}
	evt.
		Str("type", "access_audit").
		Str("trace_id", e.TraceID).
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("practice_code", e.PracticeCode).
		Str("patient", e.PatientID).
		Str("resource_id", e.ResourceID).
		Str("outcome", e.Outcome).
		Str("detail", e.Detail).
		Msg("access")

	if l.store == nil {
		return
	}
	if err := l.store.Insert(ctx, &e); err != nil {
		l.logger.Error().Err(err).Str("trace_id", e.TraceID).Msg("failed to persist access audit entry")
	}
}

// PGStore writes entries to the access_audit table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, e *Entry) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO access_audit (id, trace_id, actor, action, practice_code,
			patient_masked, resource_id, outcome, detail, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.TraceID, e.Actor, e.Action, e.PracticeCode,
		e.PatientID, e.ResourceID, e.Outcome, e.Detail, e.RecordedAt)
	return err
}

// ListByTrace returns the entries for one trace id, oldest first.
func (s *PGStore) ListByTrace(ctx context.Context, traceID string) ([]*Entry, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, trace_id, actor, action, practice_code, patient_masked,
			resource_id, outcome, detail, recorded_at
		FROM access_audit WHERE trace_id = $1 ORDER BY recorded_at`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Actor, &e.Action, &e.PracticeCode, &e.PatientID,
			&e.ResourceID, &e.Outcome, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
