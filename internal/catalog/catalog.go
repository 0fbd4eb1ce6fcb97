package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
)

// Source loads chart templates and per-event overrides from wherever the
// venue-authoring tool writes them. This engine only ever reads them.
type Source interface {
	Chart(ctx context.Context, chartID uuid.UUID) (*domain.SeatingChart, error)
	Overrides(ctx context.Context, eventID, chartID uuid.UUID) (domain.EventOverrides, error)
}

// Catalog merges a chart template with one event's overrides at read time.
// The template is shared and never mutated; two events over the same chart
// see independent effective prices and availability.
type Catalog struct {
	chart     *domain.SeatingChart
	overrides domain.EventOverrides
}

func New(chart *domain.SeatingChart, overrides domain.EventOverrides) *Catalog {
	return &Catalog{chart: chart, overrides: overrides}
}

// Load builds the effective catalog for (event, chart) from a source.
func Load(ctx context.Context, src Source, eventID, chartID uuid.UUID) (*Catalog, error) {
	chart, err := src.Chart(ctx, chartID)
	if err != nil {
		return nil, err
	}
	overrides, err := src.Overrides(ctx, eventID, chartID)
	if err != nil {
		return nil, err
	}
	return New(chart, overrides), nil
}

func (c *Catalog) ChartID() uuid.UUID {
	return c.chart.ID
}

func (c *Catalog) Seat(seatID string) (domain.Seat, error) {
	seat, ok := c.chart.Seat(seatID)
	if !ok {
		return domain.Seat{}, domain.ErrSeatNotFound
	}
	return seat, nil
}

func (c *Catalog) Seats() []domain.Seat {
	return c.chart.Seats
}

// EffectivePrice is the seat's price override when one exists, otherwise the
// base price scaled by the category multiplier (1 when absent).
func (c *Catalog) EffectivePrice(seatID string) (float64, error) {
	seat, ok := c.chart.Seat(seatID)
	if !ok {
		return 0, domain.ErrSeatNotFound
	}
	if price, ok := c.overrides.PriceOverrides[seatID]; ok {
		return price, nil
	}
	multiplier := 1.0
	if m, ok := c.overrides.CategoryMultipliers[seat.CategoryID]; ok {
		multiplier = m
	}
	return seat.BasePrice * multiplier, nil
}

// EffectiveAvailability folds the event's availability override into the
// seat's active flag. Deactivated seats are never sellable.
func (c *Catalog) EffectiveAvailability(seatID string) (bool, error) {
	seat, ok := c.chart.Seat(seatID)
	if !ok {
		return false, domain.ErrSeatNotFound
	}
	if !seat.Active {
		return false, nil
	}
	if avail, ok := c.overrides.Availability[seatID]; ok {
		return avail, nil
	}
	return true, nil
}
