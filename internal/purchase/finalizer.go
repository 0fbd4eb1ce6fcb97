package purchase

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

// Finalizer converts a session's live holds into sold seats in one atomic
// step. Either every hold in the session becomes a sale or none does; a
// partial ticket never exists.
type Finalizer struct {
	store  storage.Store
	clock  clock.Clock
	logger observability.Logger
}

func NewFinalizer(store storage.Store, clk clock.Clock, logger observability.Logger) *Finalizer {
	return &Finalizer{store: store, clock: clk, logger: logger}
}

// CompletePurchase gathers the session's live holds for the event and
// commits them against the order. Expiry is validated here and again inside
// the store's commit, so a hold that lapses mid-checkout fails the whole
// call with the seats that must be re-held.
func (f *Finalizer) CompletePurchase(ctx context.Context, sessionID string, eventID, orderID uuid.UUID, customer domain.Customer) ([]string, error) {
	if sessionID == "" || eventID == uuid.Nil || orderID == uuid.Nil {
		return nil, domain.ErrInvalidInput
	}

	start := time.Now()
	holds, err := f.store.HoldsBySession(ctx, eventID, sessionID)
	if err != nil {
		return nil, err
	}

	now := f.clock.Now()
	var live []domain.SeatHold
	var expired []string
	for _, h := range holds {
		if !h.Status.Claims() {
			continue
		}
		if h.ExpiredAt(now) {
			expired = append(expired, h.SeatID)
			continue
		}
		live = append(live, h)
	}
	if len(expired) > 0 {
		sort.Strings(expired)
		return nil, &domain.PartialExpiryError{ExpiredSeatIDs: expired}
	}
	if len(live) == 0 {
		return nil, domain.ErrHoldNotFound
	}

	sort.Slice(live, func(i, j int) bool { return live[i].SeatID < live[j].SeatID })
	batch := storage.SaleBatch{
		EventID:     eventID,
		OrderID:     orderID,
		SessionID:   sessionID,
		HoldIDs:     make([]uuid.UUID, len(live)),
		SeatIDs:     make([]string, len(live)),
		Customer:    customer,
		FinalizedAt: now,
	}
	for i, h := range live {
		batch.HoldIDs[i] = h.ID
		batch.SeatIDs[i] = h.SeatID
	}

	if err := f.store.CommitSale(ctx, batch); err != nil {
		return nil, err
	}

	observability.SeatsSold.Add(float64(len(live)))
	observability.FinalizeDuration.Observe(time.Since(start).Seconds())
	f.logger.WithField("order_id", orderID).Info("purchase finalized", len(live), "seats")
	return batch.SeatIDs, nil
}
