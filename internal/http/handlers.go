package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/seat-hold-engine/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/seat-hold-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-hold-engine/internal/allocation"
	"github.com/robertarktes/seat-hold-engine/internal/availability"
	"github.com/robertarktes/seat-hold-engine/internal/catalog"
	"github.com/robertarktes/seat-hold-engine/internal/config"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/hold"
	"github.com/robertarktes/seat-hold-engine/internal/idempotency"
	"github.com/robertarktes/seat-hold-engine/internal/purchase"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

type Handlers struct {
	cfg       *config.Config
	manager   *hold.Manager
	selector  *allocation.Selector
	view      *availability.View
	finalizer *purchase.Finalizer
	charts    catalog.Source
	seatLocks *redisadapter.Cache
	idemp     *idempotency.Idempotency
	audit     *mongoadapter.AuditLogger
}

func NewHandlers(cfg *config.Config, manager *hold.Manager, selector *allocation.Selector, view *availability.View, finalizer *purchase.Finalizer, charts catalog.Source, seatLocks *redisadapter.Cache, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		manager:   manager,
		selector:  selector,
		view:      view,
		finalizer: finalizer,
		charts:    charts,
		seatLocks: seatLocks,
		idemp:     idemp,
		audit:     audit,
	}
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replay(w, r, key) {
		return
	}

	var req struct {
		EventID         uuid.UUID `json:"event_id"`
		ChartID         uuid.UUID `json:"chart_id"`
		SeatIDs         []string  `json:"seat_ids"`
		SessionID       string    `json:"session_id"`
		DurationMinutes int       `json:"duration_minutes"`
		CustomerEmail   string    `json:"customer_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cat, err := catalog.Load(r.Context(), h.charts, req.EventID, req.ChartID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	for _, seatID := range req.SeatIDs {
		if _, err := cat.Seat(seatID); err != nil {
			writeEngineError(w, err)
			return
		}
		sellable, err := cat.EffectiveAvailability(seatID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !sellable {
			writeEngineError(w, &domain.SeatUnavailableError{SeatIDs: []string{seatID}})
			return
		}
	}

	ttl := h.cfg.HoldTTL
	if req.DurationMinutes > 0 {
		ttl = time.Duration(req.DurationMinutes) * time.Minute
	}

	// Advisory redis locks reject hot seats before the database round trip.
	// The store's conditional insert remains the ground truth. The lock TTL
	// tracks the effective hold duration so the two lapse together.
	var locked []string
	for _, seatID := range req.SeatIDs {
		ok, err := h.seatLocks.SetSeatLock(r.Context(), req.EventID.String(), seatID, req.SessionID, ttl)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			for _, id := range locked {
				h.seatLocks.ReleaseSeatLock(r.Context(), req.EventID.String(), id)
			}
			writeEngineError(w, &domain.SeatUnavailableError{SeatIDs: []string{seatID}})
			return
		}
		locked = append(locked, seatID)
	}

	batch, err := h.manager.HoldSeats(r.Context(), hold.HoldRequest{
		SeatIDs:       req.SeatIDs,
		EventID:       req.EventID,
		ChartID:       req.ChartID,
		SessionID:     req.SessionID,
		Duration:      ttl,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		for _, id := range locked {
			h.seatLocks.ReleaseSeatLock(r.Context(), req.EventID.String(), id)
		}
		writeEngineError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogHoldBatch(r.Context(), batch)
	}

	holds := make([]map[string]interface{}, len(batch.Holds))
	for i, hd := range batch.Holds {
		holds[i] = map[string]interface{}{"hold_id": hd.ID, "seat_id": hd.SeatID}
	}
	h.respond(w, r.Context(), key, http.StatusCreated, map[string]interface{}{
		"batch_id":   batch.ID,
		"holds":      holds,
		"expires_at": batch.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) ExtendHold(w http.ResponseWriter, r *http.Request) {
	holdID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid hold id", http.StatusBadRequest)
		return
	}
	var req struct {
		AdditionalMinutes int `json:"additional_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.manager.ExtendHold(r.Context(), holdID, time.Duration(req.AdditionalMinutes)*time.Minute)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ReleaseHolds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HoldIDs   []uuid.UUID `json:"hold_ids"`
		SessionID string      `json:"session_id"`
		EventID   uuid.UUID   `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	released, err := h.manager.ReleaseHolds(r.Context(), storage.HoldFilter{
		HoldIDs:   req.HoldIDs,
		SessionID: req.SessionID,
		EventID:   req.EventID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Drop the advisory locks for the released seats, otherwise they would
	// read as taken on the fast path until the lock TTL lapses.
	for _, hd := range released {
		h.seatLocks.ReleaseSeatLock(r.Context(), hd.EventID.String(), hd.SeatID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": len(released)})
}

func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	chartID, err := uuid.Parse(chi.URLParam(r, "chartID"))
	if err != nil {
		http.Error(w, "invalid chart id", http.StatusBadRequest)
		return
	}

	cat, err := catalog.Load(r.Context(), h.charts, eventID, chartID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	seats, err := h.view.Seats(r.Context(), cat, eventID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	out := make([]map[string]interface{}, len(seats))
	for i, sv := range seats {
		out[i] = map[string]interface{}{
			"seat_id": sv.Seat.ID,
			"section": sv.Seat.Section,
			"row":     sv.Seat.Row,
			"number":  sv.Seat.Number,
			"status":  sv.Status,
			"price":   sv.Price,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seats": out})
}

func (h *Handlers) BestAvailableSeats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID        uuid.UUID `json:"event_id"`
		ChartID        uuid.UUID `json:"chart_id"`
		Quantity       int       `json:"quantity"`
		PreferTogether *bool     `json:"prefer_together"`
		MaxPrice       *float64  `json:"max_price"`
		Section        string    `json:"section"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cat, err := catalog.Load(r.Context(), h.charts, req.EventID, req.ChartID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	preferTogether := true
	if req.PreferTogether != nil {
		preferTogether = *req.PreferTogether
	}
	seats, err := h.selector.BestAvailableSeats(r.Context(), cat, allocation.Request{
		EventID:        req.EventID,
		Quantity:       req.Quantity,
		PreferTogether: preferTogether,
		MaxPrice:       req.MaxPrice,
		Section:        req.Section,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seat_ids": ids})
}

func (h *Handlers) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replay(w, r, key) {
		return
	}

	var req struct {
		SessionID string    `json:"session_id"`
		EventID   uuid.UUID `json:"event_id"`
		OrderID   uuid.UUID `json:"order_id"`
		Customer  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	seatIDs, err := h.finalizer.CompletePurchase(r.Context(), req.SessionID, req.EventID, req.OrderID, domain.Customer{
		Name:  req.Customer.Name,
		Email: req.Customer.Email,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	for _, seatID := range seatIDs {
		h.seatLocks.ReleaseSeatLock(r.Context(), req.EventID.String(), seatID)
	}
	if h.audit != nil {
		h.audit.LogSale(r.Context(), req.SessionID, req.EventID, req.OrderID, seatIDs)
	}

	h.respond(w, r.Context(), key, http.StatusOK, map[string]interface{}{
		"order_id": req.OrderID,
		"seat_ids": seatIDs,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return true
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return true
	}
	return false
}

func (h *Handlers) respond(w http.ResponseWriter, ctx context.Context, key string, status int, body map[string]interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	h.idemp.Set(ctx, key, idempotency.Response{Status: status, Result: data})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeEngineError(w http.ResponseWriter, err error) {
	var seatErr *domain.SeatUnavailableError
	var insufErr *domain.InsufficientAvailabilityError
	var expiryErr *domain.PartialExpiryError
	switch {
	case errors.As(err, &seatErr):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    "seats unavailable",
			"seat_ids": seatErr.SeatIDs,
		})
	case errors.As(err, &insufErr):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "insufficient availability",
			"available": insufErr.Available,
		})
	case errors.As(err, &expiryErr):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":            "holds expired",
			"expired_seat_ids": expiryErr.ExpiredSeatIDs,
		})
	case errors.Is(err, domain.ErrChartNotFound), errors.Is(err, domain.ErrSeatNotFound), errors.Is(err, domain.ErrHoldNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrHoldExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
