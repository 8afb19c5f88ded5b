// Package events publishes coordinator outcomes to Kafka and consumes remote
// publish triggers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"autoposter/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Emitter writes one JSON message per coordinator invocation, keyed by platform.
type Emitter struct {
	writer messageWriter
	logger zerolog.Logger
}

func NewEmitter(broker, topic string, logger zerolog.Logger) *Emitter {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  []string{broker},
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return newEmitter(w, logger)
}

func newEmitter(w messageWriter, logger zerolog.Logger) *Emitter {
	return &Emitter{writer: w, logger: logger.With().Str("component", "events").Logger()}
}

func (e *Emitter) Emit(ctx context.Context, ev models.Event) error {
	const op = "events.Emit"

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	msg := kafka.Message{Key: []byte(ev.Platform), Value: value, Time: ev.At}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (e *Emitter) Close() error {
	return e.writer.Close()
}

// TriggerRequest asks for one scheduled-style run on a platform.
type TriggerRequest struct {
	Platform models.Platform `json:"platform"`
}

type TriggerHandler func(ctx context.Context, platform models.Platform)

// Consumer reads trigger requests from a topic until its context ends.
type Consumer struct {
	reader  messageReader
	handle  TriggerHandler
	backoff time.Duration
	logger  zerolog.Logger
}

func NewConsumer(broker, topic, groupID string, handle TriggerHandler, logger zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
	})
	return newConsumer(r, handle, logger)
}

func newConsumer(r messageReader, handle TriggerHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handle:  handle,
		backoff: time.Second,
		logger:  logger.With().Str("component", "trigger-consumer").Logger(),
	}
}

// Run blocks until ctx is cancelled. Requests are handled one at a time.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("error reading trigger")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		var req TriggerRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("malformed trigger")
			continue
		}
		if !req.Platform.Valid() {
			c.logger.Warn().Str("platform", string(req.Platform)).Int64("offset", msg.Offset).Msg("trigger for unknown platform")
			continue
		}
		c.logger.Info().Str("platform", string(req.Platform)).Int64("offset", msg.Offset).Msg("trigger received")
		c.handle(ctx, req.Platform)
	}
}
