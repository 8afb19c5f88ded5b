package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autoposter/internal/logging"
	"autoposter/internal/models"
)

// app is the state shared by every subcommand once the root has loaded config.
type app struct {
	configPath string
	cfg        *models.Config
	logger     zerolog.Logger
}

func Execute(ctx context.Context) error {
	a := &app{}
	root := &cobra.Command{
		Use:           "autoposter",
		Short:         "Publish queued images from a spreadsheet to Twitter and Instagram",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to the yaml config file (optional)")

	root.AddCommand(
		serveCmd(a),
		publishCmd(a),
		discardCmd(a),
		peekCmd(a),
		migrateCmd(a),
	)
	return root.ExecuteContext(ctx)
}

func (a *app) load() error {
	cfg, err := models.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// validate stops the command on missing settings before any client is built.
func (a *app) validate() error {
	if err := a.cfg.Validate(); err != nil {
		a.logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	return nil
}

func parsePlatform(s string) (models.Platform, error) {
	p := models.Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q (want twitter or instagram)", s)
	}
	return p, nil
}
