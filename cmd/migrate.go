package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoposter/internal/models"
	"autoposter/internal/storage"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the publish ledger schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("%w: database_url is not set", models.ErrConfig)
			}
			return storage.RunMigrations(a.cfg.DatabaseURL, a.logger)
		},
	}
}
