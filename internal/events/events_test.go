package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestEmit(t *testing.T) {
	w := &fakeWriter{}
	e := newEmitter(w, zerolog.Nop())
	ev := models.Event{
		ID: uuid.New(), Platform: models.PlatformTwitter, Trigger: models.TriggerManual,
		State: "sheet_updated", Position: 2, Identifier: "cat.jpg", Message: "ok", At: time.Now().UTC(),
	}

	require.NoError(t, e.Emit(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "twitter", string(w.msgs[0].Key))

	var got models.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "sheet_updated", got.State)
}

func TestEmitError(t *testing.T) {
	e := newEmitter(&fakeWriter{err: errors.New("broker down")}, zerolog.Nop())
	assert.Error(t, e.Emit(context.Background(), models.Event{Platform: models.PlatformTwitter}))
}

type fakeReader struct {
	msgs   []kafka.Message
	errs   []error
	closed bool
	cancel context.CancelFunc
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumerDispatchesValidTriggers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		errs:   []error{errors.New("rebalancing")},
		msgs: []kafka.Message{
			{Value: []byte(`{"platform":"twitter"}`)},
			{Value: []byte(`not json`)},
			{Value: []byte(`{"platform":"myspace"}`)},
			{Value: []byte(`{"platform":"instagram"}`)},
		},
	}
	var got []models.Platform
	c := newConsumer(r, func(ctx context.Context, p models.Platform) { got = append(got, p) }, zerolog.Nop())
	c.backoff = time.Millisecond

	c.Run(ctx)

	assert.Equal(t, []models.Platform{models.PlatformTwitter, models.PlatformInstagram}, got)
	assert.True(t, r.closed)
}
