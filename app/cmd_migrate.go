package app

import (
	"context"

	"github.com/JiscSD/rdss-metadata-catalog/catalog/pgstore"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdMigrate(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doMigrate(cmd.Context(), logger, config)
		},
	}
}

func doMigrate(ctx context.Context, logger logrus.FieldLogger, config *Config) error {
	if config.Catalog.Store != "postgres" {
		return errors.Errorf("store %q has no schema to migrate", config.Catalog.Store)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := pgstore.Open(ctx, logger, config.Catalog.PostgresDSN)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("Schema is up to date.")
	return nil
}
