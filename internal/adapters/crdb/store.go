package crdb

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/storage"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

// Store implements the storage port on CockroachDB. All conditional writes
// run in SERIALIZABLE transactions; retryable serialization failures map to
// domain.ErrStorageConflict so callers can back off and retry.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrStorageConflict
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) TryAcquireHold(ctx context.Context, hold domain.SeatHold) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		// Lazy reclaim: a blocking hold whose TTL elapsed expires here
		// instead of waiting for the sweeper.
		_, err := tx.Exec(ctx, `
			UPDATE seat_holds SET status = 'EXPIRED'
			WHERE event_id = $1 AND seat_id = $2
			  AND status IN ('ACTIVE', 'EXTENDED') AND expires_at <= $3
		`, hold.EventID, hold.SeatID, hold.HeldAt)
		if err != nil {
			return err
		}

		var sold bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM sold_seats WHERE event_id = $1 AND seat_id = $2)
		`, hold.EventID, hold.SeatID).Scan(&sold)
		if err != nil {
			return err
		}
		if sold {
			return storage.ErrSeatConflict
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO seat_holds (id, batch_id, seat_id, event_id, chart_id, session_id, customer_email, status, held_at, expires_at, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'ACTIVE', $8, $9, $10)
			ON CONFLICT (event_id, seat_id) WHERE status IN ('ACTIVE', 'EXTENDED') DO NOTHING
		`, hold.ID, hold.BatchID, hold.SeatID, hold.EventID, hold.ChartID, hold.SessionID, hold.CustomerEmail, hold.HeldAt, hold.ExpiresAt, int64(hold.Duration.Seconds()))
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return storage.ErrSeatConflict
		}
		return nil
	})
}

func (s *Store) ReleaseHold(ctx context.Context, holdID uuid.UUID) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE seat_holds SET status = 'CANCELLED'
		WHERE id = $1 AND status IN ('ACTIVE', 'EXTENDED')
	`, holdID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (s *Store) ReleaseHolds(ctx context.Context, f storage.HoldFilter) ([]domain.SeatHold, error) {
	query := `UPDATE seat_holds SET status = 'CANCELLED' WHERE status IN ('ACTIVE', 'EXTENDED')`
	args := []interface{}{}
	if len(f.HoldIDs) > 0 {
		args = append(args, f.HoldIDs)
		query += ` AND id = ANY($1)`
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		query += ` AND session_id = $` + strconv.Itoa(len(args))
	}
	if f.EventID != uuid.Nil {
		args = append(args, f.EventID)
		query += ` AND event_id = $` + strconv.Itoa(len(args))
	}
	query += ` RETURNING id, batch_id, seat_id, event_id, chart_id, session_id, customer_email, status, held_at, expires_at, duration_seconds`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (s *Store) GetHold(ctx context.Context, holdID uuid.UUID) (domain.SeatHold, error) {
	var h domain.SeatHold
	var durationSeconds int64
	err := s.pool.QueryRow(ctx, `
		SELECT id, batch_id, seat_id, event_id, chart_id, session_id, customer_email, status, held_at, expires_at, duration_seconds
		FROM seat_holds WHERE id = $1
	`, holdID).Scan(&h.ID, &h.BatchID, &h.SeatID, &h.EventID, &h.ChartID, &h.SessionID, &h.CustomerEmail, &h.Status, &h.HeldAt, &h.ExpiresAt, &durationSeconds)
	if err == pgx.ErrNoRows {
		return domain.SeatHold{}, domain.ErrHoldNotFound
	}
	if err != nil {
		return domain.SeatHold{}, err
	}
	h.Duration = time.Duration(durationSeconds) * time.Second
	return h, nil
}

func (s *Store) ExtendHold(ctx context.Context, holdID uuid.UUID, expiresAt, now time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE seat_holds SET status = 'EXTENDED', expires_at = GREATEST(expires_at, $2)
		WHERE id = $1 AND status = 'ACTIVE' AND expires_at > $3
	`, holdID, expiresAt, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := s.GetHold(ctx, holdID); err != nil {
			return err
		}
		return domain.ErrHoldExpired
	}
	return nil
}

func (s *Store) HoldsBySession(ctx context.Context, eventID uuid.UUID, sessionID string) ([]domain.SeatHold, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, seat_id, event_id, chart_id, session_id, customer_email, status, held_at, expires_at, duration_seconds
		FROM seat_holds WHERE event_id = $1 AND session_id = $2
	`, eventID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (s *Store) ExpiredHolds(ctx context.Context, now time.Time) ([]domain.SeatHold, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, seat_id, event_id, chart_id, session_id, customer_email, status, held_at, expires_at, duration_seconds
		FROM seat_holds WHERE status IN ('ACTIVE', 'EXTENDED') AND expires_at <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHolds(rows)
}

func (s *Store) MarkExpired(ctx context.Context, holdIDs []uuid.UUID) (int, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE seat_holds SET status = 'EXPIRED'
		WHERE id = ANY($1) AND status IN ('ACTIVE', 'EXTENDED')
	`, holdIDs)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func (s *Store) CommitSale(ctx context.Context, batch storage.SaleBatch) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, seat_id, chart_id, status, expires_at
			FROM seat_holds WHERE id = ANY($1) FOR UPDATE
		`, batch.HoldIDs)
		if err != nil {
			return err
		}

		type lockedHold struct {
			id        uuid.UUID
			seatID    string
			chartID   uuid.UUID
			status    domain.HoldStatus
			expiresAt time.Time
		}
		locked := make(map[uuid.UUID]lockedHold, len(batch.HoldIDs))
		for rows.Next() {
			var lh lockedHold
			if err := rows.Scan(&lh.id, &lh.seatID, &lh.chartID, &lh.status, &lh.expiresAt); err != nil {
				rows.Close()
				return err
			}
			locked[lh.id] = lh
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var expired []string
		for _, id := range batch.HoldIDs {
			lh, ok := locked[id]
			if !ok {
				return domain.ErrHoldNotFound
			}
			if !lh.status.Claims() || !lh.expiresAt.After(batch.FinalizedAt) {
				expired = append(expired, lh.seatID)
			}
		}
		if len(expired) > 0 {
			return &domain.PartialExpiryError{ExpiredSeatIDs: expired}
		}

		for _, id := range batch.HoldIDs {
			lh := locked[id]
			_, err := tx.Exec(ctx, `
				INSERT INTO sold_seats (seat_id, event_id, chart_id, order_id, customer_name, customer_email, finalized_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, lh.seatID, batch.EventID, lh.chartID, batch.OrderID, batch.Customer.Name, batch.Customer.Email, batch.FinalizedAt)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
					return &domain.PartialExpiryError{ExpiredSeatIDs: []string{lh.seatID}}
				}
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE seat_holds SET status = 'COMPLETED' WHERE id = ANY($1)
		`, batch.HoldIDs)
		if err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": batch.OrderID,
			"event_id": batch.EventID,
			"seat_ids": batch.SeatIDs,
		})
		return s.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "sale",
			AggregateID:   batch.OrderID,
			EventType:     "sale.finalized",
			Payload:       payload,
			DedupeKey:     batch.OrderID.String(),
		})
	})
}

func (s *Store) SeatStates(ctx context.Context, eventID, chartID uuid.UUID, now time.Time) ([]storage.SeatState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seat_id, 'SOLD' FROM sold_seats WHERE event_id = $1 AND chart_id = $2
		UNION ALL
		SELECT seat_id, 'HELD' FROM seat_holds
		WHERE event_id = $1 AND chart_id = $2 AND status IN ('ACTIVE', 'EXTENDED') AND expires_at > $3
	`, eventID, chartID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]storage.State)
	for rows.Next() {
		var seatID string
		var state storage.State
		if err := rows.Scan(&seatID, &state); err != nil {
			return nil, err
		}
		// Sold takes precedence over a racing hold row.
		if existing, ok := states[seatID]; ok && existing == storage.StateSold {
			continue
		}
		states[seatID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]storage.SeatState, 0, len(states))
	for seatID, state := range states {
		out = append(out, storage.SeatState{SeatID: seatID, State: state})
	}
	return out, nil
}

func scanHolds(rows pgx.Rows) ([]domain.SeatHold, error) {
	var holds []domain.SeatHold
	for rows.Next() {
		var h domain.SeatHold
		var durationSeconds int64
		err := rows.Scan(&h.ID, &h.BatchID, &h.SeatID, &h.EventID, &h.ChartID, &h.SessionID, &h.CustomerEmail, &h.Status, &h.HeldAt, &h.ExpiresAt, &durationSeconds)
		if err != nil {
			return nil, err
		}
		h.Duration = time.Duration(durationSeconds) * time.Second
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
