package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewEnvelope(t *testing.T) {
	payload := OrderCreatedPayload{
		OrderID:     42,
		OrderNumber: "ORD-250829-123456",
		Total:       decimal.NewFromInt(150),
		Items:       []ItemLine{{ProductID: 7, Name: "Shirt", Qty: 2}},
	}

	env, err := NewEnvelope(EventOrderCreated, "backoffice-api", "ORD-250829-123456", payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	if _, err := uuid.Parse(env.EventID); err != nil {
		t.Errorf("event id should be a uuid, got %q", env.EventID)
	}
	if env.EventType != EventOrderCreated {
		t.Errorf("expected %s, got %s", EventOrderCreated, env.EventType)
	}
	if env.EventVersion != 1 {
		t.Errorf("expected version 1, got %d", env.EventVersion)
	}
	if env.OccurredAt.IsZero() {
		t.Error("occurred_at should be stamped")
	}
	if len(env.Payload) == 0 {
		t.Error("payload should be encoded")
	}
}

func TestPartitionKey(t *testing.T) {
	if got := string(PartitionKey(42)); got != "42" {
		t.Errorf("expected 42, got %s", got)
	}
}
