package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jpcardenas/retail-backoffice/internal/events"
	kafkax "github.com/jpcardenas/retail-backoffice/internal/kafka"
	"github.com/jpcardenas/retail-backoffice/internal/redisx"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

// Service turns online-order lifecycle events into customer emails and
// records the sends back on the order. Consumed events are deduplicated
// in Redis by event id so a redelivery never emails twice.
type Service struct {
	DB          *sql.DB
	Redis       *redis.Client
	Mailer      Mailer
	ServiceName string
	Log         zerolog.Logger
}

// Mailer is the outbound email boundary.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes the email to the log instead of an SMTP relay. Stands
// in until the transactional-email provider is wired up.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (s *Service) HandleOnlineOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// Poison message; log and commit so it does not wedge the partition.
		s.Log.Error().Err(err).Str("key", string(m.Key)).Msg("undecodable event")
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	var err error
	switch env.EventType {
	case events.EventOnlineOrderPlaced:
		err = s.handlePlaced(ctx, env)
	case events.EventOnlineOrderConfirmed:
		err = s.handleConfirmed(ctx, env)
	case events.EventOnlineOrderRejected:
		err = s.handleRejected(ctx, env)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func (s *Service) handlePlaced(ctx context.Context, env events.Envelope) error {
	p, err := kafkax.UnwrapPayload[events.OnlineOrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.CustomerEmail == "" {
		return nil
	}

	subject := fmt.Sprintf("We received your order %s", p.OrderNumber)
	body := fmt.Sprintf("Hi %s, your order %s for %s is awaiting confirmation.",
		p.CustomerName, p.OrderNumber, p.Total.StringFixed(2))
	if err := s.Mailer.Send(ctx, p.CustomerEmail, subject, body); err != nil {
		return fmt.Errorf("send order-received email: %w", err)
	}

	if err := store.MarkNewOrderEmailSent(ctx, s.DB, p.OrderID); err != nil {
		s.Log.Warn().Err(err).Int64("order_id", p.OrderID).Msg("mark email sent")
	}
	return nil
}

func (s *Service) handleConfirmed(ctx context.Context, env events.Envelope) error {
	p, err := kafkax.UnwrapPayload[events.OnlineOrderConfirmedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.CustomerEmail == "" {
		return nil
	}

	subject := fmt.Sprintf("Your order %s is confirmed", p.OrderNumber)
	body := fmt.Sprintf("Hi %s, your order %s has been confirmed and is being prepared.",
		p.CustomerName, p.OrderNumber)
	if err := s.Mailer.Send(ctx, p.CustomerEmail, subject, body); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}

	if err := store.MarkConfirmationEmailSent(ctx, s.DB, p.OrderID); err != nil {
		s.Log.Warn().Err(err).Int64("order_id", p.OrderID).Msg("mark confirmation email sent")
	}
	return nil
}

func (s *Service) handleRejected(ctx context.Context, env events.Envelope) error {
	p, err := kafkax.UnwrapPayload[events.OnlineOrderRejectedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.CustomerEmail == "" {
		return nil
	}

	subject := fmt.Sprintf("About your order %s", p.OrderNumber)
	body := fmt.Sprintf("Unfortunately we could not take your order %s: %s", p.OrderNumber, p.Reason)
	if err := s.Mailer.Send(ctx, p.CustomerEmail, subject, body); err != nil {
		return fmt.Errorf("send rejection email: %w", err)
	}
	return nil
}
