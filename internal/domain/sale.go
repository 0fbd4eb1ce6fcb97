package domain

import (
	"time"

	"github.com/google/uuid"
)

// SoldSeat is the boundary record handed to the external order system once a
// hold has been finalized. Immutable after creation within this engine.
type SoldSeat struct {
	SeatID      string
	EventID     uuid.UUID
	OrderID     uuid.UUID
	FinalizedAt time.Time
}

// Customer carries the buyer details attached to a finalized purchase.
type Customer struct {
	Name  string
	Email string
}
