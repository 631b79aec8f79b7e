package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler marks bookings that stayed pending past a grace period as
// orphaned. A pending record means the process stopped, or local
// confirmation failed, between writing the intent and recording the outcome.
type Reconciler struct {
	store  Repository
	after  time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func NewReconciler(store Repository, after time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, after: after, logger: logger, now: time.Now}
}

// Sweep runs once and returns how many records were orphaned.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.after)
	n, err := r.store.MarkOrphaned(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn().Int("count", n).Time("cutoff", cutoff).Msg("pending bookings marked orphaned")
	}
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}
