// Package publisher turns a caption and an image into a post on a social platform.
//
// Every implementation returns a models.Outcome instead of an error: the
// outcome message is shown to the operator verbatim, and callers branch on
// Outcome.Succeeded only.
package publisher

import (
	"context"
	"image"

	"autoposter/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, caption string, img image.Image) models.Outcome
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, caption string, img image.Image) models.Outcome

func (f Func) Publish(ctx context.Context, caption string, img image.Image) models.Outcome {
	return f(ctx, caption, img)
}
