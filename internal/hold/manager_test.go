package hold

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/seat-hold-engine/internal/adapters/memory"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memory.Store, *clock.Fake) {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	return NewManager(store, clk, observability.NewNopLogger(), opts...), store, clk
}

func request(eventID, chartID uuid.UUID, sessionID string, seatIDs ...string) HoldRequest {
	return HoldRequest{
		SeatIDs:   seatIDs,
		EventID:   eventID,
		ChartID:   chartID,
		SessionID: sessionID,
	}
}

func TestHoldSeats_SingleWinnerUnderContention(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	eventID, chartID := uuid.New(), uuid.New()

	const contenders = 16
	var wins, conflicts int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < contenders; i++ {
		session := "session-" + uuid.NewString()
		g.Go(func() error {
			_, err := mgr.HoldSeats(ctx, request(eventID, chartID, session, "A7"))
			var unavailable *domain.SeatUnavailableError
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
				return nil
			case errors.As(err, &unavailable):
				atomic.AddInt64(&conflicts, 1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != contenders-1 {
		t.Fatalf("expected %d conflicts, got %d", contenders-1, conflicts)
	}
}

func TestHoldSeats_BatchIsAllOrNothing(t *testing.T) {
	mgr, store, clk := newTestManager(t)
	eventID, chartID := uuid.New(), uuid.New()
	ctx := context.Background()

	// Another session already holds B2 and B4.
	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "rival", "B2", "B4")); err != nil {
		t.Fatalf("seeding rival hold: %v", err)
	}

	_, err := mgr.HoldSeats(ctx, request(eventID, chartID, "buyer", "B1", "B2", "B3", "B4"))
	var unavailable *domain.SeatUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected SeatUnavailableError, got %v", err)
	}
	if len(unavailable.SeatIDs) != 2 || unavailable.SeatIDs[0] != "B2" || unavailable.SeatIDs[1] != "B4" {
		t.Fatalf("expected blocking set [B2 B4], got %v", unavailable.SeatIDs)
	}

	// B1 and B3 were rolled back, so the buyer can take them alone.
	states, err := store.SeatStates(ctx, eventID, chartID, clk.Now())
	if err != nil {
		t.Fatalf("seat states: %v", err)
	}
	for _, st := range states {
		if st.SeatID == "B1" || st.SeatID == "B3" {
			t.Fatalf("seat %s should not be held after a failed batch", st.SeatID)
		}
	}
	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "buyer", "B1", "B3")); err != nil {
		t.Fatalf("expected B1/B3 to be free, got %v", err)
	}
}

func TestHoldSeats_DeduplicatesSeatIDs(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	eventID, chartID := uuid.New(), uuid.New()

	batch, err := mgr.HoldSeats(context.Background(), request(eventID, chartID, "s1", "C2", "C1", "C2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := batch.SeatIDs()
	if len(ids) != 2 || ids[0] != "C1" || ids[1] != "C2" {
		t.Fatalf("expected deduplicated sorted seats [C1 C2], got %v", ids)
	}
}

func TestHoldSeats_ValidatesInput(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	cases := []HoldRequest{
		{SeatIDs: nil, EventID: uuid.New(), ChartID: uuid.New(), SessionID: "s"},
		{SeatIDs: []string{"A1"}, EventID: uuid.Nil, ChartID: uuid.New(), SessionID: "s"},
		{SeatIDs: []string{"A1"}, EventID: uuid.New(), ChartID: uuid.New(), SessionID: ""},
	}
	for _, req := range cases {
		if _, err := mgr.HoldSeats(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}
}

func TestHoldSeats_ReclaimsLapsedHold(t *testing.T) {
	mgr, store, clk := newTestManager(t, WithTTL(time.Minute))
	eventID, chartID := uuid.New(), uuid.New()
	ctx := context.Background()

	first, err := mgr.HoldSeats(ctx, request(eventID, chartID, "early-bird", "D5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Still live: a second session is rejected.
	clk.Advance(59 * time.Second)
	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "latecomer", "D5")); err == nil {
		t.Fatal("expected conflict while the first hold is live")
	}

	// One second past expiry the seat is reclaimable without any sweep.
	clk.Advance(2 * time.Second)
	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "latecomer", "D5")); err != nil {
		t.Fatalf("expected lapsed hold to be reclaimed, got %v", err)
	}

	got, err := store.GetHold(ctx, first.Holds[0].ID)
	if err != nil {
		t.Fatalf("get hold: %v", err)
	}
	if got.Status != domain.HoldStatusExpired {
		t.Fatalf("expected first hold EXPIRED, got %s", got.Status)
	}
}

func TestExtendHold(t *testing.T) {
	mgr, store, clk := newTestManager(t, WithTTL(time.Minute))
	eventID, chartID := uuid.New(), uuid.New()
	ctx := context.Background()

	batch, err := mgr.HoldSeats(ctx, request(eventID, chartID, "s1", "E1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	holdID := batch.Holds[0].ID

	t.Run("extends and marks extended", func(t *testing.T) {
		if err := mgr.ExtendHold(ctx, holdID, 5*time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h, _ := store.GetHold(ctx, holdID)
		if h.Status != domain.HoldStatusExtended {
			t.Fatalf("expected EXTENDED, got %s", h.Status)
		}
		want := clk.Now().Add(6 * time.Minute)
		if !h.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, h.ExpiresAt)
		}
	})

	t.Run("at most one extension", func(t *testing.T) {
		if err := mgr.ExtendHold(ctx, holdID, time.Minute); !errors.Is(err, domain.ErrHoldExpired) {
			t.Fatalf("expected ErrHoldExpired on second extension, got %v", err)
		}
	})

	t.Run("rejects non-positive duration", func(t *testing.T) {
		if err := mgr.ExtendHold(ctx, holdID, 0); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("unknown hold", func(t *testing.T) {
		if err := mgr.ExtendHold(ctx, uuid.New(), time.Minute); !errors.Is(err, domain.ErrHoldNotFound) {
			t.Fatalf("expected ErrHoldNotFound, got %v", err)
		}
	})

	t.Run("expired hold", func(t *testing.T) {
		lapsed, err := mgr.HoldSeats(ctx, request(eventID, chartID, "s2", "E2"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clk.Advance(2 * time.Minute)
		if err := mgr.ExtendHold(ctx, lapsed.Holds[0].ID, time.Minute); !errors.Is(err, domain.ErrHoldExpired) {
			t.Fatalf("expected ErrHoldExpired, got %v", err)
		}
	})
}

func TestReleaseHolds(t *testing.T) {
	mgr, store, clk := newTestManager(t)
	eventID, chartID := uuid.New(), uuid.New()
	ctx := context.Background()

	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "s1", "F1", "F2", "F3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	released, err := mgr.ReleaseHolds(ctx, storage.HoldFilter{SessionID: "s1", EventID: eventID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(released) != 3 {
		t.Fatalf("expected 3 released, got %d", len(released))
	}
	seats := make([]string, len(released))
	for i, h := range released {
		seats[i] = h.SeatID
	}
	sort.Strings(seats)
	if seats[0] != "F1" || seats[1] != "F2" || seats[2] != "F3" {
		t.Fatalf("expected released seats [F1 F2 F3], got %v", seats)
	}

	// Idempotent: a second release finds nothing live.
	released, err = mgr.ReleaseHolds(ctx, storage.HoldFilter{SessionID: "s1", EventID: eventID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("expected 0 on repeat release, got %d", len(released))
	}

	// Seats are free again.
	states, _ := store.SeatStates(ctx, eventID, chartID, clk.Now())
	if len(states) != 0 {
		t.Fatalf("expected no held seats, got %v", states)
	}
	if _, err := mgr.HoldSeats(ctx, request(eventID, chartID, "s2", "F1", "F2", "F3")); err != nil {
		t.Fatalf("expected released seats to be reacquirable, got %v", err)
	}

	if _, err := mgr.ReleaseHolds(ctx, storage.HoldFilter{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty filter, got %v", err)
	}
}

// flakyStore fails TryAcquireHold with a transient conflict a fixed number of
// times before delegating.
type flakyStore struct {
	storage.Store
	remaining int
}

func (f *flakyStore) TryAcquireHold(ctx context.Context, hold domain.SeatHold) error {
	if f.remaining > 0 {
		f.remaining--
		return domain.ErrStorageConflict
	}
	return f.Store.TryAcquireHold(ctx, hold)
}

func TestHoldSeats_RetriesTransientConflicts(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	flaky := &flakyStore{Store: memory.NewStore(), remaining: 2}
	mgr := NewManager(flaky, clk, observability.NewNopLogger())
	eventID, chartID := uuid.New(), uuid.New()

	batch, err := mgr.HoldSeats(context.Background(), request(eventID, chartID, "s1", "G1"))
	if err != nil {
		t.Fatalf("expected retries to absorb transient conflicts, got %v", err)
	}
	if len(batch.Holds) != 1 {
		t.Fatalf("expected one hold, got %d", len(batch.Holds))
	}

	exhausted := &flakyStore{Store: memory.NewStore(), remaining: 10}
	mgr = NewManager(exhausted, clk, observability.NewNopLogger())
	_, err = mgr.HoldSeats(context.Background(), request(eventID, chartID, "s1", "G2"))
	var unavailable *domain.SeatUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected SeatUnavailableError after retry exhaustion, got %v", err)
	}
}
