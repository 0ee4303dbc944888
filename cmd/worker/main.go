package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/bootstrap"
	"github.com/Domenick1991/tourbooking/internal/delivery"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/service/inventory"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logg := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logg)
	if err != nil {
		logg.WithError(err).Fatal("Failed to open stores")
	}
	defer stores.Close()

	inv := inventory.NewInventoryService(stores.Packages, inventory.WithLogger(logg))

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logg)
		defer consumer.Close()

		sender := delivery.NewSender(logg)
		go func() {
			if err := consumer.Consume(ctx, kafka.NotificationHandler(logg, sender.Send)); err != nil {
				logg.WithError(err).Error("Notification consumer stopped")
				stop()
			}
		}()
	} else {
		logg.Warn("Kafka is not configured, notification delivery is disabled")
	}

	auditTicker := time.NewTicker(time.Duration(cfg.Worker.AuditIntervalMinutes) * time.Minute)
	defer auditTicker.Stop()

	for {
		select {
		case <-auditTicker.C:
			drifts, err := inv.Audit(ctx)
			if err != nil {
				logg.WithError(err).Error("Capacity audit failed")
				continue
			}
			logg.WithFields(logrus.Fields{"drifted_packages": len(drifts)}).Info("Capacity audit finished")
		case <-ctx.Done():
			logg.Info("Worker shutting down")
			return
		}
	}
}
