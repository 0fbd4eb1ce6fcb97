package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

const DefaultInterval = time.Minute

// Notifier is told about reclaimed holds so downstream systems (seat maps,
// waiting rooms) converge. Delivery failures never block the sweep.
type Notifier interface {
	HoldsExpired(ctx context.Context, holds []domain.SeatHold) error
}

// Sweeper reclaims holds whose TTL has elapsed. It is a liveness mechanism
// only: the manager and the finalizer both re-validate expiry at the moment
// of use, so correctness never depends on the sweep interval.
type Sweeper struct {
	store    storage.Store
	clock    clock.Clock
	logger   observability.Logger
	notifier Notifier
}

func New(store storage.Store, clk clock.Clock, logger observability.Logger, notifier Notifier) *Sweeper {
	return &Sweeper{store: store, clock: clk, logger: logger, notifier: notifier}
}

// SweepOnce marks every lapsed live hold expired and reports how many it
// reclaimed. Holds that completed or were released since the scan are
// skipped by the conditional update.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	holds, err := s.store.ExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(holds) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(holds))
	for i, h := range holds {
		ids[i] = h.ID
	}
	marked, err := s.store.MarkExpired(ctx, ids)
	if err != nil {
		return 0, err
	}
	observability.SweepReclaimed.Add(float64(marked))

	if s.notifier != nil && marked > 0 {
		if err := s.notifier.HoldsExpired(ctx, holds); err != nil {
			s.logger.Error("failed to notify expired holds", err)
		}
	}
	return marked, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", err)
				continue
			}
			if reclaimed > 0 {
				s.logger.WithField("reclaimed", reclaimed).Info("expired holds reclaimed")
			}
		}
	}
}
