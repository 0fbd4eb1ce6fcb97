package hold

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

const (
	DefaultTTL = 15 * time.Minute

	maxAttempts    = 3
	retryBaseDelay = 50 * time.Millisecond
)

// Manager owns the hold lifecycle: acquisition, extension and release. It is
// one of only two writers to the seat/hold store (the other being the
// finalizer) and carries no mutable state of its own.
type Manager struct {
	store  storage.Store
	clock  clock.Clock
	logger observability.Logger
	ttl    time.Duration
}

type Option func(*Manager)

// WithTTL overrides the default hold duration.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func NewManager(store storage.Store, clk clock.Clock, logger observability.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		clock:  clk,
		logger: logger,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type HoldRequest struct {
	SeatIDs       []string
	EventID       uuid.UUID
	ChartID       uuid.UUID
	SessionID     string
	Duration      time.Duration // zero means the manager default
	CustomerEmail string
}

// HoldSeats acquires every requested seat for the session or none of them.
// Seats are locked in lexicographic id order so two overlapping multi-seat
// requests cannot deadlock against each other. Transient storage contention
// is retried with exponential backoff before surfacing as unavailability.
func (m *Manager) HoldSeats(ctx context.Context, req HoldRequest) (domain.HoldBatch, error) {
	if len(req.SeatIDs) == 0 || req.SessionID == "" || req.EventID == uuid.Nil || req.ChartID == uuid.Nil {
		return domain.HoldBatch{}, domain.ErrInvalidInput
	}

	seatIDs := dedupeSorted(req.SeatIDs)
	ttl := req.Duration
	if ttl <= 0 {
		ttl = m.ttl
	}

	for attempt := 0; ; attempt++ {
		batch, err := m.tryAcquireBatch(ctx, seatIDs, req, ttl)
		if !errors.Is(err, domain.ErrStorageConflict) {
			return batch, err
		}
		if attempt+1 >= maxAttempts {
			observability.HoldConflicts.Inc()
			return domain.HoldBatch{}, &domain.SeatUnavailableError{SeatIDs: seatIDs}
		}
		backoff := time.Duration(1<<attempt) * retryBaseDelay
		select {
		case <-ctx.Done():
			return domain.HoldBatch{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (m *Manager) tryAcquireBatch(ctx context.Context, seatIDs []string, req HoldRequest, ttl time.Duration) (domain.HoldBatch, error) {
	now := m.clock.Now()
	batchID := uuid.New()

	var acquired []domain.SeatHold
	var blocked []string
	for _, seatID := range seatIDs {
		h := domain.NewSeatHold(batchID, seatID, req.EventID, req.ChartID, req.SessionID, req.CustomerEmail, now, ttl)
		err := m.store.TryAcquireHold(ctx, h)
		switch {
		case err == nil:
			acquired = append(acquired, h)
		case errors.Is(err, storage.ErrSeatConflict):
			// Keep probing so the caller learns the full blocking set.
			blocked = append(blocked, seatID)
		default:
			m.rollback(ctx, acquired)
			return domain.HoldBatch{}, err
		}
	}

	if len(blocked) > 0 {
		m.rollback(ctx, acquired)
		observability.HoldConflicts.Inc()
		return domain.HoldBatch{}, &domain.SeatUnavailableError{SeatIDs: blocked}
	}

	observability.HoldsAcquired.Add(float64(len(acquired)))
	return domain.HoldBatch{
		ID:        batchID,
		EventID:   req.EventID,
		SessionID: req.SessionID,
		Holds:     acquired,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// rollback releases holds acquired earlier in a failed batch. Best effort:
// a hold that slips through here still dies by TTL.
func (m *Manager) rollback(ctx context.Context, acquired []domain.SeatHold) {
	for _, h := range acquired {
		if _, err := m.store.ReleaseHold(ctx, h.ID); err != nil {
			m.logger.WithField("hold_id", h.ID).Error("failed to roll back hold", err)
		}
	}
}

// ExtendHold pushes an active hold's expiry forward and marks it extended.
// It never shortens the window.
func (m *Manager) ExtendHold(ctx context.Context, holdID uuid.UUID, additional time.Duration) error {
	if additional <= 0 {
		return domain.ErrInvalidInput
	}
	h, err := m.store.GetHold(ctx, holdID)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	if h.Status != domain.HoldStatusActive || h.ExpiredAt(now) {
		return domain.ErrHoldExpired
	}
	return m.store.ExtendHold(ctx, holdID, h.ExpiresAt.Add(additional), now)
}

// ReleaseHolds cancels every live hold matching the filter and returns the
// holds that transitioned. Releasing a hold that is already terminal is a
// no-op, not an error.
func (m *Manager) ReleaseHolds(ctx context.Context, f storage.HoldFilter) ([]domain.SeatHold, error) {
	if f.Empty() {
		return nil, domain.ErrInvalidInput
	}
	released, err := m.store.ReleaseHolds(ctx, f)
	if err != nil {
		return nil, err
	}
	observability.HoldsReleased.Add(float64(len(released)))
	return released, nil
}

func dedupeSorted(ids []string) []string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			out = append(out, id)
		}
	}
	return out
}
