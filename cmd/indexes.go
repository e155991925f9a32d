package main

import (
	"context"

	"github.com/spf13/cobra"

	"studentauth/internal/database"
	"studentauth/internal/logging"
)

// NewIndexesCmd creates the indexes subcommand.
func NewIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes used by the account store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.Setup(logging.Options{
				Service: "studentauth",
				Version: version,
				Format:  cfg.Log.Format,
				Level:   cfg.Log.Level,
			}, cmd.ErrOrStderr())

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mongo.Timeout*2)
			defer cancel()

			client, coll, err := openMongoCollection(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Disconnect(context.Background()) }()

			names, err := database.EnsureIndexes(ctx, coll)
			if err != nil {
				return err
			}
			for _, name := range names {
				cmd.Println("index ready:", name)
			}
			return nil
		},
	}
}
