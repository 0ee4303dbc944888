package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/auth"
	"github.com/Domenick1991/tourbooking/internal/bootstrap"
	"github.com/Domenick1991/tourbooking/internal/logger"
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

	infra, err := bootstrap.OpenInfra(ctx, cfg, logg, stores.Checks)
	if err != nil {
		logg.WithError(err).Fatal("Failed to connect infrastructure")
	}
	defer infra.Close()

	services, _ := bootstrap.BuildServices(cfg, logg, stores, infra)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	router := bootstrap.NewRouter(cfg, logg, verifier, services, stores.Checks)

	if err := bootstrap.Run(ctx, cfg, logg, router); err != nil {
		logg.WithError(err).Error("Server error")
		return
	}
	logg.Info("Server exited")
}
