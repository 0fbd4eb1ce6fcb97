package domain

import (
	"time"

	"github.com/google/uuid"
)

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusExtended  HoldStatus = "EXTENDED"
	HoldStatusCompleted HoldStatus = "COMPLETED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusCancelled HoldStatus = "CANCELLED"
)

// Claims reports whether a hold in this status still owns exclusivity over
// its seat. Expiry is checked separately against the wall clock.
func (s HoldStatus) Claims() bool {
	return s == HoldStatusActive || s == HoldStatusExtended
}

// SeatHold is a time-bounded exclusivity claim on one seat for a checkout
// session. It does not own the seat, only the right to finalize it.
type SeatHold struct {
	ID            uuid.UUID
	BatchID       uuid.UUID
	SeatID        string
	EventID       uuid.UUID
	ChartID       uuid.UUID
	SessionID     string
	CustomerEmail string
	Status        HoldStatus
	Reason        string
	HeldAt        time.Time
	ExpiresAt     time.Time
	Duration      time.Duration
}

func (h SeatHold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

func NewSeatHold(batchID uuid.UUID, seatID string, eventID, chartID uuid.UUID, sessionID, customerEmail string, now time.Time, ttl time.Duration) SeatHold {
	return SeatHold{
		ID:            uuid.New(),
		BatchID:       batchID,
		SeatID:        seatID,
		EventID:       eventID,
		ChartID:       chartID,
		SessionID:     sessionID,
		CustomerEmail: customerEmail,
		Status:        HoldStatusActive,
		HeldAt:        now,
		ExpiresAt:     now.Add(ttl),
		Duration:      ttl,
	}
}

// HoldBatch is the result of a successful multi-seat acquisition: every seat
// in the batch shares one expiry window and one owning session.
type HoldBatch struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	SessionID string
	Holds     []SeatHold
	ExpiresAt time.Time
}

func (b HoldBatch) SeatIDs() []string {
	ids := make([]string, len(b.Holds))
	for i, h := range b.Holds {
		ids[i] = h.SeatID
	}
	return ids
}
