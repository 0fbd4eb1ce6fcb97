package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChartRepository reads seating-chart templates and per-event overrides
// written by the venue-authoring tool. This engine never mutates them.
type ChartRepository struct {
	charts    *mongo.Collection
	overrides *mongo.Collection
	logger    observability.Logger
}

func NewChartRepository(db *mongo.Database, logger observability.Logger) *ChartRepository {
	return &ChartRepository{
		charts:    db.Collection("seating_charts"),
		overrides: db.Collection("event_overrides"),
		logger:    logger,
	}
}

type ChartDoc struct {
	ID         uuid.UUID     `bson:"_id"`
	VenueName  string        `bson:"venue_name"`
	Seats      []SeatDoc     `bson:"seats"`
	Categories []CategoryDoc `bson:"categories"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

type SeatDoc struct {
	ID         string  `bson:"id"`
	Section    string  `bson:"section"`
	Row        string  `bson:"row"`
	Number     int     `bson:"number"`
	X          float64 `bson:"x,omitempty"`
	Y          float64 `bson:"y,omitempty"`
	CategoryID string  `bson:"category_id"`
	BasePrice  float64 `bson:"base_price"`
	Accessible bool    `bson:"accessible"`
	Premium    bool    `bson:"premium"`
	Active     bool    `bson:"active"`
}

type CategoryDoc struct {
	ID       string  `bson:"id"`
	Name     string  `bson:"name"`
	Color    string  `bson:"color"`
	Price    float64 `bson:"price"`
	Ordering int     `bson:"ordering"`
}

type OverridesDoc struct {
	EventID             uuid.UUID          `bson:"event_id"`
	ChartID             uuid.UUID          `bson:"chart_id"`
	PriceOverrides      map[string]float64 `bson:"price_overrides,omitempty"`
	CategoryMultipliers map[string]float64 `bson:"category_multipliers,omitempty"`
	Availability        map[string]bool    `bson:"availability,omitempty"`
}

func (r *ChartRepository) Chart(ctx context.Context, chartID uuid.UUID) (*domain.SeatingChart, error) {
	var doc ChartDoc
	err := r.charts.FindOne(ctx, bson.M{"_id": chartID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrChartNotFound
	}
	if err != nil {
		r.logger.Error("failed to load chart", err)
		return nil, err
	}

	seats := make([]domain.Seat, len(doc.Seats))
	for i, s := range doc.Seats {
		seats[i] = domain.Seat{
			ID:         s.ID,
			ChartID:    doc.ID,
			Section:    s.Section,
			Row:        s.Row,
			Number:     s.Number,
			X:          s.X,
			Y:          s.Y,
			CategoryID: s.CategoryID,
			BasePrice:  s.BasePrice,
			Accessible: s.Accessible,
			Premium:    s.Premium,
			Active:     s.Active,
		}
	}
	categories := make([]domain.SeatCategory, len(doc.Categories))
	for i, c := range doc.Categories {
		categories[i] = domain.SeatCategory{
			ID:       c.ID,
			Name:     c.Name,
			Color:    c.Color,
			Price:    c.Price,
			Ordering: c.Ordering,
		}
	}
	return domain.NewSeatingChart(doc.ID, doc.VenueName, seats, categories), nil
}

func (r *ChartRepository) Overrides(ctx context.Context, eventID, chartID uuid.UUID) (domain.EventOverrides, error) {
	var doc OverridesDoc
	err := r.overrides.FindOne(ctx, bson.M{"event_id": eventID, "chart_id": chartID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		// No overrides authored for this event: template pricing applies.
		return domain.EventOverrides{EventID: eventID, ChartID: chartID}, nil
	}
	if err != nil {
		r.logger.Error("failed to load overrides", err)
		return domain.EventOverrides{}, err
	}
	return domain.EventOverrides{
		EventID:             doc.EventID,
		ChartID:             doc.ChartID,
		PriceOverrides:      doc.PriceOverrides,
		CategoryMultipliers: doc.CategoryMultipliers,
		Availability:        doc.Availability,
	}, nil
}
