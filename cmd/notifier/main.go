package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/setrag/rail-booking-backend/internal/config"
	"github.com/setrag/rail-booking-backend/internal/database"
	"github.com/setrag/rail-booking-backend/internal/notifier"
	"github.com/setrag/rail-booking-backend/internal/services"
	"github.com/setrag/rail-booking-backend/pkg/logger"
	"github.com/setrag/rail-booking-backend/pkg/mq"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(logger.Options{Level: cfg.Server.LogLevel, File: cfg.Server.LogFile})

	if cfg.AMQP.URL == "" {
		log.Fatal("AMQP_URL is required")
	}
	if cfg.SMTP.Host == "" {
		log.Fatal("SMTP_HOST is required")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ledger := services.NewBookingLedgerService(database.NewBookingRepository(db.DB), log)
	mailer := notifier.NewMailer(cfg.SMTP.From, notifier.NewSMTPSender(cfg.SMTP))
	n := notifier.NewNotifier(mailer, ledger, database.NewTripRepository(db.DB), log)

	consumer, err := mq.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, notifier.RoutingKeys, 4)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"exchange": cfg.AMQP.Exchange,
		"queue":    cfg.AMQP.Queue,
	}).Info("Notifier consuming booking events")

	if err := consumer.Run(ctx, "setrag-notifier", n.Handle); err != nil {
		log.Errorf("Consumer stopped: %v", err)
		return
	}
	log.Info("Notifier exited successfully")
}
