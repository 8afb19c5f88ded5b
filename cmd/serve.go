package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autoposter/internal/events"
	"autoposter/internal/models"
	"autoposter/internal/scheduler"
	"autoposter/internal/server"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(a *app) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review UI, the scheduled flow and the trigger consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.validate(); err != nil {
				return err
			}
			return a.serve(cmd.Context(), !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the scheduled flow in this process")
	return cmd
}

func (a *app) serve(ctx context.Context, withScheduler bool) error {
	interval, err := a.cfg.ScheduleInterval()
	if err != nil {
		return err
	}
	d, err := a.build(ctx, true)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to build dependencies")
		return err
	}
	defer d.Close()

	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := []server.Option{server.WithMetrics(d.metrics.Handler())}
	if d.ledger != nil {
		opts = append(opts, server.WithHistory(d.ledger))
	}
	srv := server.NewServer(a.cfg.ServerAddr, d.coord, a.logger, opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if withScheduler {
		sched := scheduler.New(d.coord, a.cfg.Schedule.Platforms, interval, a.cfg.Schedule.LockPath, a.logger)
		g.Go(func() error {
			err := sched.Run(gctx)
			if errors.Is(err, scheduler.ErrLocked) {
				// another process on this host owns the timer; keep serving
				a.logger.Warn().Err(err).Msg("scheduled flow disabled in this process")
				return nil
			}
			return err
		})
	}

	if a.cfg.Kafka.Broker != "" && a.cfg.Kafka.TriggerTopic != "" {
		consumer := events.NewConsumer(a.cfg.Kafka.Broker, a.cfg.Kafka.TriggerTopic, a.cfg.Kafka.GroupID,
			func(ctx context.Context, p models.Platform) {
				if _, err := d.coord.PublishScheduled(ctx, p, models.TriggerRemote); err != nil {
					a.logger.Error().Err(err).Str("platform", string(p)).Msg("remote trigger not started")
				}
			}, a.logger)
		g.Go(func() error {
			consumer.Run(gctx)
			return nil
		})
	}

	a.logger.Info().Str("addr", a.cfg.ServerAddr).Bool("scheduler", withScheduler).Msg("autoposter started")
	err = g.Wait()
	a.logger.Info().Msg("autoposter stopped")
	return err
}
