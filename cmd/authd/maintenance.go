package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/store/postgres"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}

			cfg, logger, err := loadConfigWith(g, config.LoadMaintenance)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db, command); err != nil {
				return err
			}
			logger.Info("migrate complete", "command", command)
			return nil
		},
	}
}

func gcCmd(g *globalFlags) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Purge revoked and expired refresh tokens past retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retention <= 0 {
				return fmt.Errorf("--retention must be > 0")
			}
			cfg, logger, err := loadConfigWith(g, config.LoadMaintenance)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			cutoff := time.Now().UTC().Add(-retention)
			n, err := postgres.NewStore(db).PurgeExpired(ctx, cutoff)
			if err != nil {
				return err
			}
			logger.Info("refresh tokens purged", "rows", n, "cutoff", cutoff)
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d refresh tokens\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 30*24*time.Hour, "keep dead rows younger than this")
	return cmd
}

func revokeUserCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Log a user out everywhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.engine.LogoutAll(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked all sessions of %s\n", args[0])
			return nil
		},
	}
}
