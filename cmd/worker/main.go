// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/app"
	"github.com/unclebandit/content-pipeline/internal/config"
	"github.com/unclebandit/content-pipeline/internal/logging"
	"github.com/unclebandit/content-pipeline/internal/queue"
	"github.com/unclebandit/content-pipeline/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Log, "worker")

	if cfg.Notifier.SMTPHost == "" || cfg.Notifier.Recipient == "" {
		log.Fatal("SMTP_HOST and NOTIFIER_RECIPIENT are required for the notification relay")
	}

	q, err := queue.DialAMQP(cfg.Notifier.AMQPURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay := service.NewNotificationRelay(app.NewEmailNotifier(cfg.Notifier), log)
	if err := relay.Run(ctx, q, cfg.Notifier.Queue); err != nil {
		log.WithError(err).Fatal("relay stopped")
	}
	log.Info("worker stopped")
}
