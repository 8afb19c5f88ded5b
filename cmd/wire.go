package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	gdrive "google.golang.org/api/drive/v3"
	gsheets "google.golang.org/api/sheets/v4"

	"autoposter/internal/claims"
	"autoposter/internal/coordinator"
	"autoposter/internal/drive"
	"autoposter/internal/effects"
	"autoposter/internal/events"
	"autoposter/internal/metrics"
	"autoposter/internal/models"
	"autoposter/internal/publisher"
	"autoposter/internal/sheets"
	"autoposter/internal/storage"
)

var platforms = []models.Platform{models.PlatformTwitter, models.PlatformInstagram}

// deps holds every collaborator built from config, plus what must be closed.
type deps struct {
	queues  []coordinator.Queue
	ledger  *storage.Storage
	emitter *events.Emitter
	redis   *redis.Client
	metrics *metrics.Registry
	coord   *coordinator.Coordinator
}

func (d *deps) Close() {
	if d.emitter != nil {
		_ = d.emitter.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.ledger != nil {
		d.ledger.Close()
	}
}

// buildQueues wires the queue store, asset store and publisher of each platform.
func (a *app) buildQueues(ctx context.Context) ([]coordinator.Queue, error) {
	const op = "main.buildQueues"

	rng, err := sheets.ParseRange(a.cfg.Range)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrConfig, err)
	}

	var sheetsSvc *gsheets.Service
	var driveSvc *gdrive.Service
	if a.cfg.QueueBackend == models.BackendGoogle || a.cfg.AssetBackend == models.BackendGoogle {
		creds, err := a.cfg.GoogleCredentialsJSON()
		if err != nil {
			return nil, err
		}
		if a.cfg.QueueBackend == models.BackendGoogle {
			if sheetsSvc, err = sheets.NewService(ctx, creds); err != nil {
				return nil, fmt.Errorf("%s: %w: %v", op, models.ErrConfig, err)
			}
		}
		if a.cfg.AssetBackend == models.BackendGoogle {
			if driveSvc, err = drive.NewService(ctx, creds); err != nil {
				return nil, fmt.Errorf("%s: %w: %v", op, models.ErrConfig, err)
			}
		}
	}

	queues := make([]coordinator.Queue, 0, len(platforms))
	for _, p := range platforms {
		qc, _ := a.cfg.Queue(p)
		logger := a.logger.With().Str("platform", string(p)).Logger()

		q := coordinator.Queue{Platform: p}
		if sheetsSvc != nil {
			q.Store = sheets.NewGoogleQueue(sheetsSvc, qc.SpreadsheetID, rng, logger)
		} else {
			q.Store = sheets.NewWorkbook(qc.SpreadsheetID, rng, logger)
		}
		if driveSvc != nil {
			q.Assets = drive.NewFolder(driveSvc, qc.FolderID, logger)
		} else {
			q.Assets = drive.NewDir(qc.FolderID)
		}
		q.Publisher = a.buildPublisher(p)
		queues = append(queues, q)
	}
	return queues, nil
}

func (a *app) buildPublisher(p models.Platform) publisher.Publisher {
	switch p {
	case models.PlatformInstagram:
		ig := a.cfg.Instagram
		return publisher.NewGuard(string(p),
			publisher.NewInstagram(publisher.NewGoinstaClient(ig.Username, ig.Password), a.logger),
			a.logger)
	default:
		tw := a.cfg.Twitter
		return publisher.NewGuard(string(p),
			publisher.NewTwitter(publisher.TwitterCredentials{
				ConsumerKey:       tw.ConsumerKey,
				ConsumerSecret:    tw.ConsumerSecret,
				AccessToken:       tw.AccessToken,
				AccessTokenSecret: tw.AccessTokenSecret,
			}, a.logger),
			a.logger)
	}
}

// build wires the coordinator and its optional collaborators. Optional
// backends that are configured but unreachable are fatal: running without a
// configured claim store would silently drop the double-post guard.
func (a *app) build(ctx context.Context, withMetrics bool) (*deps, error) {
	const op = "main.build"

	d := &deps{}
	queues, err := a.buildQueues(ctx)
	if err != nil {
		return nil, err
	}
	d.queues = queues

	wm, err := effects.NewWatermarker(a.cfg.WatermarkText)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	opts := []coordinator.Option{coordinator.WithWatermark(wm)}

	if a.cfg.RedisAddr != "" {
		ttl, err := a.cfg.ClaimDuration()
		if err != nil {
			return nil, err
		}
		d.redis = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			d.Close()
			return nil, fmt.Errorf("%s: redis: %v", op, err)
		}
		opts = append(opts, coordinator.WithClaimer(claims.NewLocker(d.redis, ttl, a.logger)))
		a.logger.Info().Str("addr", a.cfg.RedisAddr).Dur("ttl", ttl).Msg("claim locker enabled")
	}

	if a.cfg.DatabaseURL != "" {
		d.ledger, err = storage.NewStorage(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		opts = append(opts, coordinator.WithLedger(d.ledger))
		a.logger.Info().Msg("publish ledger enabled")
	}

	if a.cfg.Kafka.Broker != "" && a.cfg.Kafka.EventsTopic != "" {
		d.emitter = events.NewEmitter(a.cfg.Kafka.Broker, a.cfg.Kafka.EventsTopic, a.logger)
		opts = append(opts, coordinator.WithEmitter(d.emitter))
		a.logger.Info().Str("topic", a.cfg.Kafka.EventsTopic).Msg("outcome events enabled")
	}

	if withMetrics {
		d.metrics = metrics.New()
		opts = append(opts, coordinator.WithMetrics(d.metrics))
	}

	d.coord = coordinator.New(queues, a.logger, opts...)
	return d, nil
}
