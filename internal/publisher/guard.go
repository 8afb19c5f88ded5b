package publisher

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"autoposter/internal/models"
)

var errFailedOutcome = errors.New("publish failed")

// Guard stops calling a platform after repeated failures. While open it fails
// fast with its own message; it never retries a publish.
type Guard struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

func NewGuard(name string, next Publisher, logger zerolog.Logger) *Guard {
	logger = logger.With().Str("breaker", name).Logger()
	st := gobreaker.Settings{
		Name:     name,
		Interval: 10 * time.Minute,
		Timeout:  15 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("publisher breaker state changed")
		},
	}
	return &Guard{next: next, breaker: gobreaker.NewCircuitBreaker(st), logger: logger}
}

func (g *Guard) Publish(ctx context.Context, caption string, img image.Image) models.Outcome {
	var outcome models.Outcome
	_, err := g.breaker.Execute(func() (interface{}, error) {
		outcome = g.next.Publish(ctx, caption, img)
		if !outcome.Succeeded {
			return nil, errFailedOutcome
		}
		return nil, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return models.Failure("Error: publicación suspendida temporalmente tras fallos repetidos (" + err.Error() + ")")
	default:
		return outcome
	}
}

func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
