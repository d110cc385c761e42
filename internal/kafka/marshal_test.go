package kafka

import (
	"encoding/json"
	"testing"
)

type testEnvelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type testPayload struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(testPayload{OrderID: 42, Status: "confirmed"})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	raw := MustMarshal(testEnvelope{EventType: "order.confirmed", Payload: payload})

	var env testEnvelope
	if err := UnmarshalEnvelope(raw, &env); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if env.EventType != "order.confirmed" {
		t.Errorf("Expected event type order.confirmed, got %s", env.EventType)
	}

	got, err := UnwrapPayload[testPayload](env.Payload)
	if err != nil {
		t.Fatalf("Unwrap payload: %v", err)
	}
	if got.OrderID != 42 || got.Status != "confirmed" {
		t.Errorf("Payload did not survive the round trip: %+v", got)
	}
}

func TestUnwrapPayloadMalformed(t *testing.T) {
	if _, err := UnwrapPayload[testPayload]([]byte("{")); err == nil {
		t.Error("Expected an error for truncated payload JSON")
	}
	if err := UnmarshalEnvelope([]byte("not json"), &testEnvelope{}); err == nil {
		t.Error("Expected an error for a non-JSON envelope")
	}
}
