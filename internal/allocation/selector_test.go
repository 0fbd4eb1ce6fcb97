package allocation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/seat-hold-engine/internal/adapters/memory"
	"github.com/robertarktes/seat-hold-engine/internal/availability"
	"github.com/robertarktes/seat-hold-engine/internal/catalog"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
)

type fixture struct {
	cat      *catalog.Catalog
	store    *memory.Store
	clk      *clock.Fake
	selector *Selector
	eventID  uuid.UUID
	chartID  uuid.UUID
}

// rowOfSeats builds row seats with ids like A1..An and prices from the given
// slice (one price per seat).
func rowOfSeats(chartID uuid.UUID, section, row string, prices []float64) []domain.Seat {
	seats := make([]domain.Seat, len(prices))
	for i, price := range prices {
		seats[i] = domain.Seat{
			ID:         fmt.Sprintf("%s%d", row, i+1),
			ChartID:    chartID,
			Section:    section,
			Row:        row,
			Number:     i + 1,
			CategoryID: "std",
			BasePrice:  price,
			Active:     true,
		}
	}
	return seats
}

func newFixture(t *testing.T, seats []domain.Seat, overrides domain.EventOverrides) *fixture {
	t.Helper()
	chartID := seats[0].ChartID
	chart := domain.NewSeatingChart(chartID, "Hall", seats, []domain.SeatCategory{
		{ID: "std", Name: "Standard", Price: 50},
	})
	store := memory.NewStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	view := availability.NewView(store, clk)
	return &fixture{
		cat:      catalog.New(chart, overrides),
		store:    store,
		clk:      clk,
		selector: NewSelector(view),
		eventID:  uuid.New(),
		chartID:  chartID,
	}
}

func (f *fixture) holdSeats(t *testing.T, seatIDs ...string) {
	t.Helper()
	batchID := uuid.New()
	for _, id := range seatIDs {
		h := domain.NewSeatHold(batchID, id, f.eventID, f.chartID, "occupant", "", f.clk.Now(), time.Hour)
		if err := f.store.TryAcquireHold(context.Background(), h); err != nil {
			t.Fatalf("seeding hold on %s: %v", id, err)
		}
	}
}

func seatIDs(seats []domain.Seat) []string {
	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return ids
}

func assertSeatIDs(t *testing.T, got []domain.Seat, want ...string) {
	t.Helper()
	ids := seatIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("expected seats %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected seats %v, got %v", want, ids)
		}
	}
}

func TestBestAvailableSeats_ContiguousLowestPrice(t *testing.T) {
	chartID := uuid.New()
	// Prices rise toward the back of the row, so the cheapest window of four
	// is A1..A4.
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46, 48, 50, 52}), domain.EventOverrides{})

	seats, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 4, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, seats, "A1", "A2", "A3", "A4")
}

func TestBestAvailableSeats_CentralityBreaksPriceTies(t *testing.T) {
	chartID := uuid.New()
	// Uniform prices: every window of four costs the same, so the run closest
	// to the row center (seats 2..5 of 1..6) wins.
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{50, 50, 50, 50, 50, 50}), domain.EventOverrides{})

	seats, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 4, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, seats, "A2", "A3", "A4", "A5")
}

func TestBestAvailableSeats_SkipsHeldSeats(t *testing.T) {
	chartID := uuid.New()
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46, 48, 50, 52}), domain.EventOverrides{})
	f.holdSeats(t, "A2")

	// A2 breaks the front run; of the remaining windows A3..A5 and A4..A6
	// the cheaper one wins.
	seats, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 3, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, seats, "A3", "A4", "A5")
}

func TestBestAvailableSeats_FallbackToCheapestScattered(t *testing.T) {
	chartID := uuid.New()
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46, 48, 50, 52}), domain.EventOverrides{})
	f.holdSeats(t, "A2", "A4", "A6")

	// Only A1, A3, A5 remain: no contiguous pair anywhere, so the selector
	// falls back to the two cheapest singles.
	seats, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 2, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, seats, "A1", "A3")
}

func TestBestAvailableSeats_RunsNeverSpanRows(t *testing.T) {
	chartID := uuid.New()
	seats := append(
		rowOfSeats(chartID, "Main", "A", []float64{50, 50}),
		rowOfSeats(chartID, "Main", "B", []float64{50, 50})...,
	)
	f := newFixture(t, seats, domain.EventOverrides{})

	// No single row has four seats; the request falls back to scattered.
	got, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 4, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, got, "A1", "A2", "B1", "B2")
}

func TestBestAvailableSeats_Filters(t *testing.T) {
	chartID := uuid.New()
	seats := append(
		rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46}),
		rowOfSeats(chartID, "Balcony", "B", []float64{30, 32, 34})...,
	)
	f := newFixture(t, seats, domain.EventOverrides{})
	ctx := context.Background()

	t.Run("max price", func(t *testing.T) {
		max := 35.0
		got, err := f.selector.BestAvailableSeats(ctx, f.cat, Request{
			EventID: f.eventID, Quantity: 3, PreferTogether: true, MaxPrice: &max,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSeatIDs(t, got, "B1", "B2", "B3")
	})

	t.Run("section", func(t *testing.T) {
		got, err := f.selector.BestAvailableSeats(ctx, f.cat, Request{
			EventID: f.eventID, Quantity: 2, PreferTogether: true, Section: "Main",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSeatIDs(t, got, "A1", "A2")
	})
}

func TestBestAvailableSeats_InsufficientAvailability(t *testing.T) {
	chartID := uuid.New()
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46}), domain.EventOverrides{})
	f.holdSeats(t, "A1")

	_, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 3, PreferTogether: true,
	})
	var insufficient *domain.InsufficientAvailabilityError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAvailabilityError, got %v", err)
	}
	if insufficient.Available != 2 {
		t.Fatalf("expected 2 available, got %d", insufficient.Available)
	}
}

func TestBestAvailableSeats_InvalidQuantity(t *testing.T) {
	chartID := uuid.New()
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42}), domain.EventOverrides{})

	_, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{EventID: f.eventID, Quantity: 0})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBestAvailableSeats_HonorsOverrides(t *testing.T) {
	chartID := uuid.New()
	f := newFixture(t, rowOfSeats(chartID, "Main", "A", []float64{42, 44, 46}), domain.EventOverrides{
		PriceOverrides: map[string]float64{"A3": 10},
		Availability:   map[string]bool{"A1": false},
	})

	// A1 is blocked for this event, leaving A2..A3 as the only contiguous
	// pair, with A3 priced by its override.
	got, err := f.selector.BestAvailableSeats(context.Background(), f.cat, Request{
		EventID: f.eventID, Quantity: 2, PreferTogether: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSeatIDs(t, got, "A2", "A3")
}
