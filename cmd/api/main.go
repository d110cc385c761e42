package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jpcardenas/retail-backoffice/internal/config"
	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/events"
	"github.com/jpcardenas/retail-backoffice/internal/httpx"
	kafkax "github.com/jpcardenas/retail-backoffice/internal/kafka"
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
	log.Logger = log.With().Str("service", cfg.Service.Name).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	rdb := redisx.New(cfg.Redis.Addr)
	defer rdb.Close()

	posProducer := kafkax.NewProducer(cfg.Kafka.Brokers, events.TopicOrderCreated, 1024)
	posProducer.Start(ctx)
	onlineProducer := kafkax.NewProducer(cfg.Kafka.Brokers, events.TopicOnlineOrders, 1024)
	onlineProducer.Start(ctx)

	r := httpx.NewRouter()
	(&httpx.ProductsHandler{DB: db}).Register(r)
	(&httpx.OrdersHandler{DB: db, Producer: posProducer, Service: cfg.Service.Name}).Register(r)
	(&httpx.OnlineOrdersHandler{DB: db, Producer: onlineProducer, Redis: rdb, Service: cfg.Service.Name}).Register(r)
	(&httpx.CustomersHandler{DB: db}).Register(r)
	(&httpx.FinancialHandler{DB: db}).Register(r)
	(&httpx.UsersHandler{DB: db}).Register(r)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	cancel()
	posProducer.WaitClosed()
	onlineProducer.WaitClosed()
}
