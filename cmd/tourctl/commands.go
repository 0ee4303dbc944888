package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/auth"
	"github.com/Domenick1991/tourbooking/internal/bootstrap"
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/service/inventory"
	"github.com/Domenick1991/tourbooking/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "tourctl",
		Short:         "Operator tooling for the tour booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "path to the YAML config")

	load := func() (*config.Config, error) {
		return config.LoadConfig(cfgPath)
	}

	root.AddCommand(newTokenCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newAuditCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func newTokenCmd(load configLoader) *cobra.Command {
	var (
		partyType string
		partyID   string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for a traveler or agency (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			t, err := domain.ParsePartyType(partyType)
			if err != nil {
				return err
			}
			if partyID == "" {
				return fmt.Errorf("--id is required")
			}
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(domain.Party{Type: t, ID: partyID}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&partyType, "type", string(domain.PartyTraveler), "party type: TRAVELER or AGENCY")
	cmd.Flags().StringVar(&partyID, "id", "", "party id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs database.driver %q, got %q", config.DriverPostgres, cfg.Database.Driver)
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			if err := migrations.Apply(cmd.Context(), pool); err != nil {
				return err
			}
			names, err := migrations.Names()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied up to %s\n", names[len(names)-1])
			return nil
		},
	}
}

func newAuditCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare package capacity counters with confirmed bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logg := logger.New(cfg.Log)
			stores, err := bootstrap.OpenStores(cmd.Context(), cfg, logg)
			if err != nil {
				return err
			}
			defer stores.Close()

			drifts, err := inventory.NewInventoryService(stores.Packages, inventory.WithLogger(logg)).Audit(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, d := range drifts {
				if err := enc.Encode(d); err != nil {
					return err
				}
			}
			if len(drifts) > 0 {
				return fmt.Errorf("%d package(s) out of balance", len(drifts))
			}
			return nil
		},
	}
}
