package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrConflict is returned when a transition does not apply to the
	// record's current status.
	ErrConflict = errors.New("booking status conflict")
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByPractice(ctx context.Context, practiceCode string, limit, offset int) ([]*Booking, int, error)
	// MarkBooked moves a pending record to booked.
	MarkBooked(ctx context.Context, id uuid.UUID, externalID string, simulated bool) error
	// MarkFailed moves a pending record to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// Cancel moves a pending or booked record to cancelled and returns it.
	Cancel(ctx context.Context, id uuid.UUID) (*Booking, error)
	// MarkOrphaned moves pending records created before cutoff to orphaned.
	MarkOrphaned(ctx context.Context, cutoff time.Time) (int, error)
}
