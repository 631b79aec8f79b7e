package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo keeps bookings in process memory. It is used when no database
// is configured, so records do not survive a restart.
type memoryRepo struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*Booking
	now      func() time.Time
}

func NewMemoryRepo() Repository {
	return &memoryRepo{bookings: make(map[uuid.UUID]*Booking), now: time.Now}
}

func (r *memoryRepo) Create(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := r.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryRepo) ListByPractice(_ context.Context, practiceCode string, limit, offset int) ([]*Booking, int, error) {
	r.mu.RLock()
	var all []*Booking
	for _, b := range r.bookings {
		if b.PracticeCode == practiceCode {
			cp := *b
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start, end := min(offset, total), min(offset+limit, total)
	return all[start:end], total, nil
}

func (r *memoryRepo) transition(id uuid.UUID, from []Status, mutate func(b *Booking)) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if b.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrConflict
	}
	mutate(b)
	b.UpdatedAt = r.now().UTC()
	cp := *b
	return &cp, nil
}

func (r *memoryRepo) MarkBooked(_ context.Context, id uuid.UUID, externalID string, simulated bool) error {
	_, err := r.transition(id, []Status{StatusPending}, func(b *Booking) {
		b.Status = StatusBooked
		b.ExternalID = externalID
		b.Simulated = simulated
	})
	return err
}

func (r *memoryRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	_, err := r.transition(id, []Status{StatusPending}, func(b *Booking) {
		b.Status = StatusFailed
		b.FailureReason = reason
	})
	return err
}

func (r *memoryRepo) Cancel(_ context.Context, id uuid.UUID) (*Booking, error) {
	return r.transition(id, []Status{StatusPending, StatusBooked}, func(b *Booking) {
		b.Status = StatusCancelled
	})
}

func (r *memoryRepo) MarkOrphaned(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	now := r.now().UTC()
	for _, b := range r.bookings {
		if b.Status == StatusPending && b.CreatedAt.Before(cutoff) {
			b.Status = StatusOrphaned
			b.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
