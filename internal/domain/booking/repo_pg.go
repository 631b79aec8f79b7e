package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpbook/gpbook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const bookingCols = `id, trace_id, status, patient_id, practice_code, appointment_type, urgency,
	reason, duration_minutes, booked_by, contact_phone, contact_email, sms_opt_in,
	start_time, end_time, external_id, failure_reason, simulated, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.TraceID, &b.Status, &b.PatientID, &b.PracticeCode, &b.AppointmentType, &b.Urgency,
		&b.Reason, &b.DurationMinutes, &b.BookedBy, &b.ContactPhone, &b.ContactEmail, &b.SMSOptIn,
		&b.Start, &b.End, &b.ExternalID, &b.FailureReason, &b.Simulated, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO booking (id, trace_id, status, patient_id, practice_code, appointment_type, urgency,
			reason, duration_minutes, booked_by, contact_phone, contact_email, sms_opt_in,
			start_time, end_time, external_id, failure_reason, simulated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		b.ID, b.TraceID, b.Status, b.PatientID, b.PracticeCode, b.AppointmentType, b.Urgency,
		b.Reason, b.DurationMinutes, b.BookedBy, b.ContactPhone, b.ContactEmail, b.SMSOptIn,
		b.Start, b.End, b.ExternalID, b.FailureReason, b.Simulated,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

func (r *repoPG) ListByPractice(ctx context.Context, practiceCode string, limit, offset int) ([]*Booking, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM booking WHERE practice_code = $1`, practiceCode).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT `+bookingCols+` FROM booking WHERE practice_code = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, practiceCode, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// transition runs an UPDATE guarded by the allowed source statuses and
// distinguishes a missing record from a status conflict.
func (r *repoPG) transition(ctx context.Context, id uuid.UUID, sql string, args ...any) (*Booking, error) {
	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx, sql+` RETURNING `+bookingCols, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return b, err
}

func (r *repoPG) MarkBooked(ctx context.Context, id uuid.UUID, externalID string, simulated bool) error {
	_, err := r.transition(ctx, id, `
		UPDATE booking SET status = 'booked', external_id = $2, simulated = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, externalID, simulated)
	return err
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.transition(ctx, id, `
		UPDATE booking SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, reason)
	return err
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return r.transition(ctx, id, `
		UPDATE booking SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'booked')`, id)
}

func (r *repoPG) MarkOrphaned(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE booking SET status = 'orphaned', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark orphaned bookings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
