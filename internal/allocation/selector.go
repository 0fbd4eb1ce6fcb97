package allocation

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/availability"
	"github.com/robertarktes/seat-hold-engine/internal/catalog"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
)

type Request struct {
	EventID        uuid.UUID
	Quantity       int
	PreferTogether bool
	MaxPrice       *float64
	Section        string
}

// Selector proposes seat sets for checkout. It performs no mutation; the
// proposed seats still have to win the race inside HoldManager.
type Selector struct {
	view *availability.View
}

func NewSelector(view *availability.View) *Selector {
	return &Selector{view: view}
}

// BestAvailableSeats picks the best eligible seats for the request.
//
// With PreferTogether set it looks for a contiguous run of exactly Quantity
// seats in one row (consecutive seat numbers), choosing the run with the
// lowest total price, breaking ties by smallest mean seat-number distance
// from the section's center and then by lowest seat id. When no contiguous
// run of that size exists anywhere, it deliberately falls back to the
// Quantity cheapest eligible seats overall (ties by lowest seat id) rather
// than failing: scattered seats beat no seats.
func (s *Selector) BestAvailableSeats(ctx context.Context, cat *catalog.Catalog, req Request) ([]domain.Seat, error) {
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidInput
	}

	views, err := s.view.AvailableSeats(ctx, cat, req.EventID)
	if err != nil {
		return nil, err
	}

	var candidates []availability.SeatView
	for _, sv := range views {
		if req.MaxPrice != nil && sv.Price > *req.MaxPrice {
			continue
		}
		if req.Section != "" && sv.Seat.Section != req.Section {
			continue
		}
		candidates = append(candidates, sv)
	}
	if len(candidates) < req.Quantity {
		return nil, &domain.InsufficientAvailabilityError{Available: len(candidates)}
	}

	if req.PreferTogether {
		if run := bestContiguousRun(cat, candidates, req.Quantity); run != nil {
			return run, nil
		}
	}
	return cheapestSeats(candidates, req.Quantity), nil
}

type rowKey struct {
	section string
	row     string
}

func bestContiguousRun(cat *catalog.Catalog, candidates []availability.SeatView, quantity int) []domain.Seat {
	rows := make(map[rowKey][]availability.SeatView)
	for _, sv := range candidates {
		key := rowKey{sv.Seat.Section, sv.Seat.Row}
		rows[key] = append(rows[key], sv)
	}
	centers := sectionCenters(cat)

	var best []availability.SeatView
	var bestPrice, bestCentrality float64
	var bestID string
	for key, seats := range rows {
		sort.Slice(seats, func(i, j int) bool { return seats[i].Seat.Number < seats[j].Seat.Number })
		center := centers[key.section]
		for start := 0; start+quantity <= len(seats); start++ {
			run := seats[start : start+quantity]
			if !consecutive(run) {
				continue
			}
			price, centrality := runScore(run, center)
			id := run[0].Seat.ID
			if best == nil || less(price, centrality, id, bestPrice, bestCentrality, bestID) {
				best = run
				bestPrice, bestCentrality, bestID = price, centrality, id
			}
		}
	}
	if best == nil {
		return nil
	}
	out := make([]domain.Seat, len(best))
	for i, sv := range best {
		out[i] = sv.Seat
	}
	return out
}

func consecutive(run []availability.SeatView) bool {
	for i := 1; i < len(run); i++ {
		if run[i].Seat.Number != run[i-1].Seat.Number+1 {
			return false
		}
	}
	return true
}

func runScore(run []availability.SeatView, center float64) (totalPrice, centrality float64) {
	for _, sv := range run {
		totalPrice += sv.Price
		centrality += math.Abs(float64(sv.Seat.Number) - center)
	}
	centrality /= float64(len(run))
	return totalPrice, centrality
}

func less(price, centrality float64, id string, bestPrice, bestCentrality float64, bestID string) bool {
	if price != bestPrice {
		return price < bestPrice
	}
	if centrality != bestCentrality {
		return centrality < bestCentrality
	}
	return id < bestID
}

// sectionCenters computes the midpoint of the seat-number range per section
// over the full chart, not just the currently available seats, so centrality
// stays stable as seats sell.
func sectionCenters(cat *catalog.Catalog) map[string]float64 {
	type span struct{ min, max int }
	spans := make(map[string]span)
	for _, seat := range cat.Seats() {
		sp, ok := spans[seat.Section]
		if !ok {
			spans[seat.Section] = span{seat.Number, seat.Number}
			continue
		}
		if seat.Number < sp.min {
			sp.min = seat.Number
		}
		if seat.Number > sp.max {
			sp.max = seat.Number
		}
		spans[seat.Section] = sp
	}
	centers := make(map[string]float64, len(spans))
	for section, sp := range spans {
		centers[section] = float64(sp.min+sp.max) / 2
	}
	return centers
}

func cheapestSeats(candidates []availability.SeatView, quantity int) []domain.Seat {
	sorted := append([]availability.SeatView(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Price != sorted[j].Price {
			return sorted[i].Price < sorted[j].Price
		}
		return sorted[i].Seat.ID < sorted[j].Seat.ID
	})
	out := make([]domain.Seat, quantity)
	for i := 0; i < quantity; i++ {
		out[i] = sorted[i].Seat
	}
	return out
}
