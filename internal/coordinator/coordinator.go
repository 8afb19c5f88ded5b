// Package coordinator drives one queue row per invocation through
// select → fetch → render → publish → mark.
//
// The queue lives in an external spreadsheet. Reading the first eligible row
// and writing its status are separate calls with no transaction between them;
// an optional Claimer closes the window between concurrent invocations in the
// same deployment. Publishing is at-least-once: a post that went out but
// could not be marked as sent is reported, never retried.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autoposter/internal/effects"
	"autoposter/internal/metrics"
	"autoposter/internal/models"
	"autoposter/internal/publisher"
	"autoposter/internal/storage"
)

type QueueStore interface {
	// FirstEligible returns nil, nil when no row is pending.
	FirstEligible(ctx context.Context) (*models.Row, error)
	// SetStatus never returns an error; false means the write did not happen.
	SetStatus(ctx context.Context, position int, status models.Status) bool
}

type AssetStore interface {
	Fetch(ctx context.Context, identifier string) ([]byte, error)
}

type Claimer interface {
	Claim(ctx context.Context, key string) (release func(context.Context), ok bool, err error)
}

type Ledger interface {
	Record(ctx context.Context, a storage.Attempt) error
	PublishedBefore(ctx context.Context, platform models.Platform, position int, identifier string) (bool, error)
}

type Emitter interface {
	Emit(ctx context.Context, ev models.Event) error
}

// Queue binds one platform to its store, assets and publisher.
type Queue struct {
	Platform  models.Platform
	Store     QueueStore
	Assets    AssetStore
	Publisher publisher.Publisher
}

type State string

const (
	StateNoPending         State = "no_pending"
	StatePendingNoAsset    State = "pending_no_asset"
	StateDecodeFailed      State = "decode_failed"
	StateClaimed           State = "claimed"
	StatePublishFailed     State = "publish_failed"
	StateSheetUpdated      State = "sheet_updated"
	StateSheetUpdateFailed State = "sheet_update_failed"
	StateDiscarded         State = "discarded"
	StateDiscardFailed     State = "discard_failed"
)

const (
	msgSheetUpdated      = " La hoja de cálculo ha sido actualizada."
	msgSheetUpdateFailed = " Pero hubo un error al actualizar la hoja de cálculo."

	sideEffectTimeout = 5 * time.Second
)

// Result is the terminal state of one invocation.
type Result struct {
	ID       uuid.UUID
	Platform models.Platform
	Trigger  models.Trigger
	State    State
	Row      *models.Row
	Effect   string
	Message  string
	// Err carries the cause for logs; it is nil for clean outcomes.
	Err error
}

// Published reports whether a post went out, whatever happened to the sheet.
func (r Result) Published() bool {
	return r.State == StateSheetUpdated || r.State == StateSheetUpdateFailed
}

type Coordinator struct {
	queues    map[models.Platform]Queue
	watermark *effects.Watermarker
	claims    Claimer
	ledger    Ledger
	events    Emitter
	metrics   *metrics.Registry
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Coordinator)

func WithWatermark(w *effects.Watermarker) Option { return func(c *Coordinator) { c.watermark = w } }
func WithClaimer(cl Claimer) Option              { return func(c *Coordinator) { c.claims = cl } }
func WithLedger(l Ledger) Option                 { return func(c *Coordinator) { c.ledger = l } }
func WithEmitter(e Emitter) Option               { return func(c *Coordinator) { c.events = e } }
func WithMetrics(m *metrics.Registry) Option     { return func(c *Coordinator) { c.metrics = m } }

func New(queues []Queue, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		queues: make(map[models.Platform]Queue, len(queues)),
		logger: logger.With().Str("component", "coordinator").Logger(),
		now:    time.Now,
	}
	for _, q := range queues {
		c.queues[q.Platform] = q
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) queue(platform models.Platform) (Queue, error) {
	q, ok := c.queues[platform]
	if !ok {
		return Queue{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	return q, nil
}

// Publish is the manual flow: the operator picked an effect in the review UI.
// An empty effect means the original image.
func (c *Coordinator) Publish(ctx context.Context, platform models.Platform, effect string) (Result, error) {
	q, err := c.queue(platform)
	if err != nil {
		return Result{}, err
	}
	if effect == "" {
		effect = effects.Original
	}
	if !effects.Valid(effect) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEffect, effect)
	}
	return c.run(ctx, q, models.TriggerManual, effect), nil
}

// PublishScheduled is the unattended flow. It always posts the original image
// and its result is only logged.
func (c *Coordinator) PublishScheduled(ctx context.Context, platform models.Platform, trigger models.Trigger) (Result, error) {
	q, err := c.queue(platform)
	if err != nil {
		return Result{}, err
	}
	return c.run(ctx, q, trigger, effects.Original), nil
}

func (c *Coordinator) begin(q Queue, trigger models.Trigger, effect string) Result {
	return Result{ID: uuid.New(), Platform: q.Platform, Trigger: trigger, Effect: effect}
}

func (c *Coordinator) run(ctx context.Context, q Queue, trigger models.Trigger, effect string) (res Result) {
	res = c.begin(q, trigger, effect)
	defer func() { c.finish(ctx, res) }()

	row, ok := c.firstEligible(ctx, q, &res)
	if !ok {
		res.Message = noPendingMessage(q.Platform)
		return res
	}

	release, claimed := c.claim(ctx, q, row, &res)
	if !claimed {
		return res
	}
	defer release(context.WithoutCancel(ctx))

	data, err := q.Assets.Fetch(ctx, row.Identifier)
	if err != nil {
		if !errors.Is(err, ErrAssetNotFound) {
			c.storeError(q.Platform, "fetch")
		}
		res.State = StatePendingNoAsset
		res.Message = "Image not found: " + row.Identifier
		res.Err = err
		return res
	}

	img, err := render(data, effect)
	if err != nil {
		res.State = StateDecodeFailed
		res.Message = "Could not decode image: " + row.Identifier
		res.Err = err
		return res
	}

	c.checkLedger(ctx, q.Platform, row)

	if c.watermark.Enabled() {
		marked, err := c.watermark.Apply(img)
		if err != nil {
			c.logger.Warn().Err(err).Str("identifier", row.Identifier).Msg("watermark failed, publishing unmarked image")
		} else {
			img = marked
		}
	}

	// Once the post may have gone out, the sheet write must not be dropped
	// because the caller went away.
	work := context.WithoutCancel(ctx)

	started := c.now()
	outcome := q.Publisher.Publish(work, row.Text, img)
	c.observePublish(q.Platform, outcome, c.now().Sub(started))

	if !outcome.Succeeded {
		res.State = StatePublishFailed
		res.Message = outcome.Message
		res.Err = fmt.Errorf("%w: %s", ErrPublish, outcome.Message)
		return res
	}

	if q.Store.SetStatus(work, row.Position, models.StatusSent) {
		res.State = StateSheetUpdated
		res.Message = outcome.Message + msgSheetUpdated
		return res
	}
	c.storeError(q.Platform, "update")
	res.State = StateSheetUpdateFailed
	res.Message = outcome.Message + msgSheetUpdateFailed
	res.Err = fmt.Errorf("%w: row %d", ErrUpdate, row.Position)
	return res
}

// Discard marks the current first eligible row as discarded without fetching
// or publishing anything.
func (c *Coordinator) Discard(ctx context.Context, platform models.Platform) (res Result, err error) {
	q, err := c.queue(platform)
	if err != nil {
		return Result{}, err
	}
	res = c.begin(q, models.TriggerManual, "")
	defer func() { c.finish(ctx, res) }()

	row, ok := c.firstEligible(ctx, q, &res)
	if !ok {
		res.Message = "No pending items to discard"
		return res, nil
	}

	release, claimed := c.claim(ctx, q, row, &res)
	if !claimed {
		return res, nil
	}
	defer release(context.WithoutCancel(ctx))

	if q.Store.SetStatus(ctx, row.Position, models.StatusDiscarded) {
		res.State = StateDiscarded
		res.Message = "Item discarded: " + row.Identifier
		return res, nil
	}
	c.storeError(q.Platform, "update")
	res.State = StateDiscardFailed
	res.Message = "Could not discard item: " + row.Identifier
	res.Err = fmt.Errorf("%w: row %d", ErrUpdate, row.Position)
	return res, nil
}

// Preview is the current row of a queue and its effect previews as base64 JPEG.
type Preview struct {
	Platform models.Platform
	Row      *models.Row
	Images   map[string]string
}

// Preview never writes. Images is empty when the asset is missing or unreadable.
func (c *Coordinator) Preview(ctx context.Context, platform models.Platform) (Preview, error) {
	q, err := c.queue(platform)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Platform: platform, Images: map[string]string{}}
	log := c.logger.With().Str("platform", string(platform)).Logger()

	row, err := q.Store.FirstEligible(ctx)
	if err != nil {
		c.storeError(platform, "query")
		log.Error().Err(err).Msg("queue query failed")
		return p, nil
	}
	if row == nil {
		return p, nil
	}
	p.Row = row

	data, err := q.Assets.Fetch(ctx, row.Identifier)
	if err != nil {
		log.Warn().Err(err).Str("identifier", row.Identifier).Msg("preview asset unavailable")
		return p, nil
	}
	set, err := effects.Apply(data)
	if err != nil {
		log.Warn().Err(err).Str("identifier", row.Identifier).Msg("preview decode failed")
		return p, nil
	}
	for name, img := range set {
		encoded, err := effects.Base64JPEG(img)
		if err != nil {
			log.Warn().Err(err).Str("effect", name).Msg("preview encode failed")
			continue
		}
		p.Images[name] = encoded
	}
	return p, nil
}

// firstEligible reads the queue. A query failure is reported to the caller as
// "nothing pending" but kept in res.Err so it is logged as an error.
func (c *Coordinator) firstEligible(ctx context.Context, q Queue, res *Result) (*models.Row, bool) {
	row, err := q.Store.FirstEligible(ctx)
	if err != nil {
		c.storeError(q.Platform, "query")
		res.State = StateNoPending
		res.Err = err
		return nil, false
	}
	if row == nil {
		res.State = StateNoPending
		return nil, false
	}
	res.Row = row
	return row, true
}

// claim reserves row for this invocation and then reads the queue again: a
// row that another invocation finished between our first read and the claim
// must not be published or written a second time.
func (c *Coordinator) claim(ctx context.Context, q Queue, row *models.Row, res *Result) (func(context.Context), bool) {
	if c.claims == nil {
		return func(context.Context) {}, true
	}
	key := fmt.Sprintf("%s:%d:%s", q.Platform, row.Position, row.Identifier)
	release, ok, err := c.claims.Claim(ctx, key)
	if err != nil {
		// fail closed: without a claim we cannot rule out a concurrent post
		res.State = StateClaimed
		res.Message = "Could not reserve item, try again later: " + row.Identifier
		res.Err = fmt.Errorf("%w: %v", ErrClaimed, err)
		return nil, false
	}
	if !ok {
		res.State = StateClaimed
		res.Message = "Item is already being processed: " + row.Identifier
		res.Err = ErrClaimed
		return nil, false
	}

	current, err := q.Store.FirstEligible(ctx)
	if err != nil {
		release(context.WithoutCancel(ctx))
		c.storeError(q.Platform, "query")
		res.State = StateClaimed
		res.Message = "Could not reserve item, try again later: " + row.Identifier
		res.Err = fmt.Errorf("%w: %w", ErrClaimed, err)
		return nil, false
	}
	if current == nil || current.Position != row.Position || current.Identifier != row.Identifier {
		release(context.WithoutCancel(ctx))
		res.State = StateClaimed
		res.Message = "Item was already handled by another request: " + row.Identifier
		res.Err = fmt.Errorf("%w: row %d changed after it was read", ErrClaimed, row.Position)
		return nil, false
	}
	return release, true
}

func (c *Coordinator) checkLedger(ctx context.Context, platform models.Platform, row *models.Row) {
	if c.ledger == nil {
		return
	}
	seen, err := c.ledger.PublishedBefore(ctx, platform, row.Position, row.Identifier)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ledger lookup failed")
		return
	}
	if seen {
		c.logger.Warn().
			Str("platform", string(platform)).
			Int("position", row.Position).
			Str("identifier", row.Identifier).
			Msg("row was already published but is still pending in the sheet, posting again")
	}
}

func render(data []byte, effect string) (image.Image, error) {
	if effect == effects.Original {
		return effects.Decode(data)
	}
	set, err := effects.Apply(data)
	if err != nil {
		return nil, err
	}
	return set[effect], nil
}

func noPendingMessage(platform models.Platform) string {
	if platform == models.PlatformTwitter {
		return "No pending items to tweet"
	}
	return "No pending items to post"
}

func (c *Coordinator) storeError(platform models.Platform, operation string) {
	if c.metrics != nil {
		c.metrics.StoreErrors.WithLabelValues(string(platform), operation).Inc()
	}
}

func (c *Coordinator) observePublish(platform models.Platform, outcome models.Outcome, took time.Duration) {
	if c.metrics == nil {
		return
	}
	result := "failure"
	if outcome.Succeeded {
		result = "success"
		c.metrics.LastSuccess.WithLabelValues(string(platform)).Set(float64(c.now().Unix()))
	}
	c.metrics.PublishDuration.WithLabelValues(string(platform), result).Observe(took.Seconds())
}

// finish logs the result and hands it to the ledger and event stream. None of
// these can change the outcome.
func (c *Coordinator) finish(ctx context.Context, res Result) {
	c.logResult(res)

	if c.metrics != nil {
		c.metrics.Invocations.WithLabelValues(string(res.Platform), string(res.Trigger), string(res.State)).Inc()
	}
	if c.ledger == nil && c.events == nil {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	var position int
	var identifier string
	if res.Row != nil {
		position, identifier = res.Row.Position, res.Row.Identifier
	}
	at := c.now().UTC()

	if c.ledger != nil && res.Row != nil {
		err := c.ledger.Record(sctx, storage.Attempt{
			ID: res.ID, Platform: res.Platform, Trigger: res.Trigger, State: string(res.State),
			Position: position, Identifier: identifier, Effect: res.Effect, Message: res.Message, CreatedAt: at,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("invocation", res.ID.String()).Msg("ledger record failed")
		}
	}
	if c.events != nil {
		err := c.events.Emit(sctx, models.Event{
			ID: res.ID, Platform: res.Platform, Trigger: res.Trigger, State: string(res.State),
			Position: position, Identifier: identifier, Effect: res.Effect, Message: res.Message, At: at,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("invocation", res.ID.String()).Msg("event emit failed")
		}
	}
}

func (c *Coordinator) logResult(res Result) {
	var ev *zerolog.Event
	switch {
	case errors.Is(res.Err, ErrQuery):
		ev = c.logger.Error()
	case res.State == StateSheetUpdateFailed, res.State == StateDiscardFailed:
		ev = c.logger.Error()
	case res.Err != nil:
		ev = c.logger.Warn()
	default:
		ev = c.logger.Info()
	}
	ev = ev.Str("invocation", res.ID.String()).
		Str("platform", string(res.Platform)).
		Str("trigger", string(res.Trigger)).
		Str("state", string(res.State))
	if res.Row != nil {
		ev = ev.Int("position", res.Row.Position).Str("identifier", res.Row.Identifier)
	}
	if res.Effect != "" {
		ev = ev.Str("effect", res.Effect)
	}
	if res.Err != nil {
		ev = ev.Err(res.Err)
	}

	switch {
	case errors.Is(res.Err, ErrQuery):
		ev.Msg("queue query failed, treating as nothing pending")
	case res.State == StateSheetUpdateFailed:
		ev.Msg("published but the sheet still shows the row as pending, fix it by hand")
	default:
		ev.Msg(res.Message)
	}
}
