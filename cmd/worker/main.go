package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jpcardenas/retail-backoffice/internal/config"
	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/events"
	kafkax "github.com/jpcardenas/retail-backoffice/internal/kafka"
	"github.com/jpcardenas/retail-backoffice/internal/notify"
	"github.com/jpcardenas/retail-backoffice/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.With().Str("service", cfg.Service.Name+"-worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	rdb := redisx.New(cfg.Redis.Addr)
	defer rdb.Close()

	svc := &notify.Service{
		DB:          db,
		Redis:       rdb,
		Mailer:      notify.LogMailer{Log: log.Logger},
		ServiceName: cfg.Service.Name + "-worker",
		Log:         log.Logger,
	}

	consumer := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, events.TopicOnlineOrders, cfg.Kafka.Workers)

	go func() {
		log.Info().
			Str("group", cfg.Kafka.ConsumerGroup).
			Str("topic", events.TopicOnlineOrders).
			Int("workers", cfg.Kafka.Workers).
			Msg("consumer started")
		if err := consumer.Start(ctx, svc.HandleOnlineOrderEvent); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
