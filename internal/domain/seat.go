package domain

import "github.com/google/uuid"

// Seat is one sellable position in a seating chart. Seats referenced by a
// hold or a sold-seat record are never deleted; they are deactivated instead.
type Seat struct {
	ID         string
	ChartID    uuid.UUID
	Section    string
	Row        string
	Number     int
	X          float64
	Y          float64
	CategoryID string
	BasePrice  float64
	Accessible bool
	Premium    bool
	Active     bool
}

type SeatCategory struct {
	ID       string
	Name     string
	Color    string
	Price    float64
	Ordering int
}

// SeatingChart is the venue template: seats and categories each live in
// their own indexed collection and seats reference a category by id only.
type SeatingChart struct {
	ID         uuid.UUID
	VenueName  string
	Seats      []Seat
	Categories []SeatCategory

	seatIndex     map[string]int
	categoryIndex map[string]int
}

func NewSeatingChart(id uuid.UUID, venue string, seats []Seat, categories []SeatCategory) *SeatingChart {
	c := &SeatingChart{
		ID:            id,
		VenueName:     venue,
		Seats:         seats,
		Categories:    categories,
		seatIndex:     make(map[string]int, len(seats)),
		categoryIndex: make(map[string]int, len(categories)),
	}
	for i, s := range seats {
		c.seatIndex[s.ID] = i
	}
	for i, cat := range categories {
		c.categoryIndex[cat.ID] = i
	}
	return c
}

func (c *SeatingChart) Seat(id string) (Seat, bool) {
	i, ok := c.seatIndex[id]
	if !ok {
		return Seat{}, false
	}
	return c.Seats[i], true
}

func (c *SeatingChart) Category(id string) (SeatCategory, bool) {
	i, ok := c.categoryIndex[id]
	if !ok {
		return SeatCategory{}, false
	}
	return c.Categories[i], true
}

// EventOverrides layers event-specific pricing and availability on top of a
// shared chart template. The template itself is never mutated; overrides are
// applied as a read-time merge.
type EventOverrides struct {
	EventID             uuid.UUID
	ChartID             uuid.UUID
	PriceOverrides      map[string]float64 // seat id -> absolute price
	CategoryMultipliers map[string]float64 // category id -> multiplier
	Availability        map[string]bool    // seat id -> availability override
}
