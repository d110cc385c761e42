package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOnlineOrderPlaced    = "OnlineOrderPlaced"
	EventOnlineOrderConfirmed = "OnlineOrderConfirmed"
	EventOnlineOrderRejected  = "OnlineOrderRejected"
	EventOnlineStatusChanged  = "OnlineOrderStatusChanged"
)

// Envelope wraps every event on the wire. CorrelationID is the order id so
// all events of one order share a partition and keep their order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a payload with identity and provenance.
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

type ItemLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Items       []ItemLine      `json:"items"`
}

type OnlineOrderPlacedPayload struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	Items         []ItemLine      `json:"items"`
}

type OnlineOrderConfirmedPayload struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	ConfirmedBy   string `json:"confirmed_by"`
}

type OnlineOrderRejectedPayload struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	Reason        string `json:"reason"`
}

type OnlineStatusChangedPayload struct {
	OrderID   int64  `json:"order_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	UpdatedBy string `json:"updated_by"`
}
