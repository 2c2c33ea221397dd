// Package notify dispatches stock alerts to external messaging
// collaborators (email/SMS/telegram workers downstream of a Kafka topic).
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/google/uuid"
)

// Notifier is the collaborator interface the coordinator fans out to.
type Notifier interface {
	Notify(ctx context.Context, alert models.StockAlert) error
}

// EventStockAvailable is published once per subscriber per distinct
// transition into In Stock.
const EventStockAvailable = "StockAvailable"

// Envelope is the versioned event wrapper on the wire.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

func newEnvelope(producer string, alert models.StockAlert) (Envelope, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    EventStockAvailable,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
		Payload:      payload,
	}, nil
}

// LogNotifier writes alerts to the logger. Used in development and when
// no broker is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, alert models.StockAlert) error {
	n.Log.Info("stock alert",
		"user_id", alert.UserID,
		"product_id", alert.ProductID,
		"product", alert.ProductName,
		"region", alert.Region,
		"link", alert.Link,
	)
	return nil
}
