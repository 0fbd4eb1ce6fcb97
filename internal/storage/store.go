package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
)

// ErrSeatConflict is the port-level signal that a seat already carries a live
// hold or a sold-seat record. HoldManager translates it into the
// caller-facing SeatUnavailableError.
var ErrSeatConflict = errors.New("seat already held or sold")

type State string

const (
	StateAvailable State = "AVAILABLE"
	StateHeld      State = "HELD"
	StateSold      State = "SOLD"
)

type SeatState struct {
	SeatID string
	State  State
}

// HoldFilter selects holds for bulk release. Non-zero fields are combined as
// a conjunction.
type HoldFilter struct {
	HoldIDs   []uuid.UUID
	SessionID string
	EventID   uuid.UUID
}

func (f HoldFilter) Empty() bool {
	return len(f.HoldIDs) == 0 && f.SessionID == "" && f.EventID == uuid.Nil
}

// SaleBatch is the unit of work for finalization: all holds convert to sold
// seats or none do.
type SaleBatch struct {
	EventID     uuid.UUID
	OrderID     uuid.UUID
	SessionID   string
	HoldIDs     []uuid.UUID
	SeatIDs     []string
	Customer    domain.Customer
	FinalizedAt time.Time
}

// Store is the persistence port for the hold/sale ground truth. Mutations
// are atomic conditional writes so the engine scales across processes
// without in-process locks. The relational adapter backs production; the
// in-memory adapter backs tests.
type Store interface {
	// TryAcquireHold inserts the hold iff the seat has no sold-seat record
	// and no live hold for the same event. A conflicting hold whose expiry
	// has passed as of hold.HeldAt is lazily transitioned to EXPIRED in the
	// same step. Returns ErrSeatConflict when the seat is taken and
	// domain.ErrStorageConflict on transient contention.
	TryAcquireHold(ctx context.Context, hold domain.SeatHold) error

	// ReleaseHold cancels one live hold. Releasing a hold that is already
	// terminal (or unknown) reports false with no error.
	ReleaseHold(ctx context.Context, holdID uuid.UUID) (bool, error)

	// ReleaseHolds cancels every live hold matching the filter and returns
	// the holds that actually transitioned, so callers can clean up per-seat
	// state (advisory locks, seat maps) for exactly those seats.
	ReleaseHolds(ctx context.Context, f HoldFilter) ([]domain.SeatHold, error)

	GetHold(ctx context.Context, holdID uuid.UUID) (domain.SeatHold, error)

	// ExtendHold moves an ACTIVE, unexpired-as-of-now hold to EXTENDED with
	// the new expiry. ErrHoldNotFound / ErrHoldExpired otherwise.
	ExtendHold(ctx context.Context, holdID uuid.UUID, expiresAt, now time.Time) error

	HoldsBySession(ctx context.Context, eventID uuid.UUID, sessionID string) ([]domain.SeatHold, error)

	ExpiredHolds(ctx context.Context, now time.Time) ([]domain.SeatHold, error)

	// MarkExpired transitions still-live holds to EXPIRED, skipping any that
	// completed or were released in the meantime.
	MarkExpired(ctx context.Context, holdIDs []uuid.UUID) (int, error)

	// CommitSale atomically writes one sold-seat record per seat and marks
	// the batch's holds COMPLETED. If any hold is no longer live and
	// unexpired as of batch.FinalizedAt the whole commit fails with a
	// *domain.PartialExpiryError and nothing is applied.
	CommitSale(ctx context.Context, batch SaleBatch) error

	// SeatStates reports the ground-truth state of every seat with a hold or
	// sale for the event. Seats absent from the result are available.
	SeatStates(ctx context.Context, eventID, chartID uuid.UUID, now time.Time) ([]SeatState, error)
}
