package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorageConflict = errors.New("storage conflict")
	ErrChartNotFound   = errors.New("chart not found")
	ErrSeatNotFound    = errors.New("seat not found")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrHoldExpired     = errors.New("hold expired")
	ErrInvalidInput    = errors.New("invalid input")
)

// SeatUnavailableError reports exactly which seats blocked a hold batch. The
// caller picks a different seat set; the engine does not retry on its own.
type SeatUnavailableError struct {
	SeatIDs []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %s", strings.Join(e.SeatIDs, ", "))
}

// InsufficientAvailabilityError means fewer eligible seats exist than were
// requested from the selector.
type InsufficientAvailabilityError struct {
	Available int
}

func (e *InsufficientAvailabilityError) Error() string {
	return fmt.Sprintf("insufficient availability: %d eligible seats", e.Available)
}

// PartialExpiryError is returned when a finalize attempt finds some of the
// session's holds already expired. Nothing is committed; the listed seats
// must be re-held before retrying.
type PartialExpiryError struct {
	ExpiredSeatIDs []string
}

func (e *PartialExpiryError) Error() string {
	return fmt.Sprintf("holds expired for seats: %s", strings.Join(e.ExpiredSeatIDs, ", "))
}
