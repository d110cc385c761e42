package kafka

import (
	"context"
	"testing"
)

func TestProducerCloseThenContextCancel(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "orders", 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Close()
	// A second Close while the context also winds down must not panic.
	p.Close()
	cancel()

	p.WaitClosed()
}

func TestProducerContextCancelThenClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "orders", 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	cancel()
	p.WaitClosed()

	// Close after shutdown is a no-op, not a double close.
	p.Close()
}
