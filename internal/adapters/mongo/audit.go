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

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	SessionID string    `bson:"session_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, sessionID string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHoldBatch(ctx context.Context, batch domain.HoldBatch) error {
	data := map[string]interface{}{
		"batch_id":   batch.ID,
		"event_id":   batch.EventID,
		"seat_ids":   batch.SeatIDs(),
		"expires_at": batch.ExpiresAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, "hold.created", batch.SessionID, data)
}

func (a *AuditLogger) LogSale(ctx context.Context, sessionID string, eventID, orderID uuid.UUID, seatIDs []string) error {
	data := map[string]interface{}{
		"event_id": eventID,
		"order_id": orderID,
		"seat_ids": seatIDs,
	}
	return a.LogEvent(ctx, "sale.finalized", sessionID, data)
}
