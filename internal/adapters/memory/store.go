package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

type seatKey struct {
	eventID uuid.UUID
	seatID  string
}

type soldRecord struct {
	domain.SoldSeat
	chartID uuid.UUID
}

// Store is a mutex-guarded in-memory implementation of the storage port.
// Every method applies its conditional write under one lock, matching the
// atomicity the relational adapter gets from its transactions.
type Store struct {
	mu       sync.Mutex
	holds    map[uuid.UUID]domain.SeatHold
	seatHold map[seatKey]uuid.UUID
	sold     map[seatKey]soldRecord
}

func NewStore() *Store {
	return &Store{
		holds:    make(map[uuid.UUID]domain.SeatHold),
		seatHold: make(map[seatKey]uuid.UUID),
		sold:     make(map[seatKey]soldRecord),
	}
}

func (s *Store) TryAcquireHold(_ context.Context, hold domain.SeatHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seatKey{hold.EventID, hold.SeatID}
	if _, taken := s.sold[key]; taken {
		return storage.ErrSeatConflict
	}
	if existingID, ok := s.seatHold[key]; ok {
		existing := s.holds[existingID]
		if existing.Status.Claims() && !existing.ExpiredAt(hold.HeldAt) {
			return storage.ErrSeatConflict
		}
		// Lazy reclaim: the blocking hold's TTL has elapsed, so it expires
		// here rather than waiting for the sweeper.
		if existing.Status.Claims() {
			existing.Status = domain.HoldStatusExpired
			s.holds[existingID] = existing
		}
		delete(s.seatHold, key)
	}

	s.holds[hold.ID] = hold
	s.seatHold[key] = hold.ID
	return nil
}

func (s *Store) ReleaseHold(_ context.Context, holdID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(holdID), nil
}

func (s *Store) releaseLocked(holdID uuid.UUID) bool {
	hold, ok := s.holds[holdID]
	if !ok || !hold.Status.Claims() {
		return false
	}
	hold.Status = domain.HoldStatusCancelled
	s.holds[holdID] = hold
	delete(s.seatHold, seatKey{hold.EventID, hold.SeatID})
	return true
}

func (s *Store) ReleaseHolds(_ context.Context, f storage.HoldFilter) ([]domain.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []domain.SeatHold
	for id, hold := range s.holds {
		if !hold.Status.Claims() {
			continue
		}
		if len(f.HoldIDs) > 0 && !containsID(f.HoldIDs, id) {
			continue
		}
		if f.SessionID != "" && hold.SessionID != f.SessionID {
			continue
		}
		if f.EventID != uuid.Nil && hold.EventID != f.EventID {
			continue
		}
		if s.releaseLocked(id) {
			released = append(released, s.holds[id])
		}
	}
	return released, nil
}

func (s *Store) GetHold(_ context.Context, holdID uuid.UUID) (domain.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[holdID]
	if !ok {
		return domain.SeatHold{}, domain.ErrHoldNotFound
	}
	return hold, nil
}

func (s *Store) ExtendHold(_ context.Context, holdID uuid.UUID, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	if hold.Status != domain.HoldStatusActive || hold.ExpiredAt(now) {
		return domain.ErrHoldExpired
	}
	hold.Status = domain.HoldStatusExtended
	if expiresAt.After(hold.ExpiresAt) {
		hold.ExpiresAt = expiresAt
	}
	s.holds[holdID] = hold
	return nil
}

func (s *Store) HoldsBySession(_ context.Context, eventID uuid.UUID, sessionID string) ([]domain.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SeatHold
	for _, hold := range s.holds {
		if hold.EventID == eventID && hold.SessionID == sessionID {
			out = append(out, hold)
		}
	}
	return out, nil
}

func (s *Store) ExpiredHolds(_ context.Context, now time.Time) ([]domain.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SeatHold
	for _, hold := range s.holds {
		if hold.Status.Claims() && hold.ExpiredAt(now) {
			out = append(out, hold)
		}
	}
	return out, nil
}

func (s *Store) MarkExpired(_ context.Context, holdIDs []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, id := range holdIDs {
		hold, ok := s.holds[id]
		if !ok || !hold.Status.Claims() {
			continue
		}
		hold.Status = domain.HoldStatusExpired
		s.holds[id] = hold
		delete(s.seatHold, seatKey{hold.EventID, hold.SeatID})
		marked++
	}
	return marked, nil
}

func (s *Store) CommitSale(_ context.Context, batch storage.SaleBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	live := make([]domain.SeatHold, 0, len(batch.HoldIDs))
	for _, id := range batch.HoldIDs {
		hold, ok := s.holds[id]
		if !ok || !hold.Status.Claims() || hold.ExpiredAt(batch.FinalizedAt) {
			if ok {
				expired = append(expired, hold.SeatID)
			}
			continue
		}
		live = append(live, hold)
	}
	if len(expired) > 0 || len(live) != len(batch.HoldIDs) {
		return &domain.PartialExpiryError{ExpiredSeatIDs: expired}
	}

	for _, hold := range live {
		hold.Status = domain.HoldStatusCompleted
		s.holds[hold.ID] = hold
		key := seatKey{hold.EventID, hold.SeatID}
		delete(s.seatHold, key)
		s.sold[key] = soldRecord{
			SoldSeat: domain.SoldSeat{
				SeatID:      hold.SeatID,
				EventID:     hold.EventID,
				OrderID:     batch.OrderID,
				FinalizedAt: batch.FinalizedAt,
			},
			chartID: hold.ChartID,
		}
	}
	return nil
}

func (s *Store) SeatStates(_ context.Context, eventID, chartID uuid.UUID, now time.Time) ([]storage.SeatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]storage.State)
	for key, rec := range s.sold {
		if key.eventID == eventID && rec.chartID == chartID {
			states[key.seatID] = storage.StateSold
		}
	}
	for key, holdID := range s.seatHold {
		if key.eventID != eventID {
			continue
		}
		hold := s.holds[holdID]
		if hold.ChartID != chartID {
			continue
		}
		if _, sold := states[key.seatID]; sold {
			continue
		}
		if hold.Status.Claims() && !hold.ExpiredAt(now) {
			states[key.seatID] = storage.StateHeld
		}
	}

	out := make([]storage.SeatState, 0, len(states))
	for seatID, state := range states {
		out = append(out, storage.SeatState{SeatID: seatID, State: state})
	}
	return out, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
