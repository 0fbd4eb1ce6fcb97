package availability

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/catalog"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

type SeatView struct {
	Seat   domain.Seat
	Status storage.State
	Price  float64
}

// View computes the effective per-seat status by merging catalog data with
// the hold/sale ground truth. It is a read model only: HoldManager re-checks
// every seat under the store's own concurrency control at acquisition time,
// so a stale read here can cost a retry but never an oversell.
type View struct {
	store storage.Store
	clock clock.Clock
}

func NewView(store storage.Store, clk clock.Clock) *View {
	return &View{store: store, clock: clk}
}

// Seats reports every sellable seat of the chart with its effective status
// and price, ordered by seat id for reproducible output.
func (v *View) Seats(ctx context.Context, cat *catalog.Catalog, eventID uuid.UUID) ([]SeatView, error) {
	states, err := v.store.SeatStates(ctx, eventID, cat.ChartID(), v.clock.Now())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]storage.State, len(states))
	for _, st := range states {
		byID[st.SeatID] = st.State
	}

	var out []SeatView
	for _, seat := range cat.Seats() {
		sellable, err := cat.EffectiveAvailability(seat.ID)
		if err != nil {
			return nil, err
		}
		if !sellable {
			continue
		}
		price, err := cat.EffectivePrice(seat.ID)
		if err != nil {
			return nil, err
		}
		status, ok := byID[seat.ID]
		if !ok {
			status = storage.StateAvailable
		}
		out = append(out, SeatView{Seat: seat, Status: status, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat.ID < out[j].Seat.ID })
	return out, nil
}

// AvailableSeats filters Seats down to seats with no live hold or sale.
func (v *View) AvailableSeats(ctx context.Context, cat *catalog.Catalog, eventID uuid.UUID) ([]SeatView, error) {
	views, err := v.Seats(ctx, cat, eventID)
	if err != nil {
		return nil, err
	}
	avail := views[:0]
	for _, sv := range views {
		if sv.Status == storage.StateAvailable {
			avail = append(avail, sv)
		}
	}
	return avail, nil
}
