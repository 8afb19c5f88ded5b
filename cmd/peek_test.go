package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/coordinator"
	"autoposter/internal/models"
)

func TestRenderPeek(t *testing.T) {
	out := renderPeek([]peekRow{
		{platform: models.PlatformTwitter, row: &models.Row{Identifier: "cat.jpg", Text: "hello", Position: 2}},
		{platform: models.PlatformInstagram},
		{platform: "twitter", err: errors.New("quota exceeded")},
	})

	assert.Contains(t, out, "Platform")
	assert.Contains(t, out, "cat.jpg")
	assert.Contains(t, out, "(blank)")
	assert.Contains(t, out, "(nothing pending)")
	assert.Contains(t, out, "error: quota exceeded")
	// top border, header, separator, three rows, bottom border
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 7)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hola", truncate("hola", 10))
	assert.Equal(t, "año…", truncate("año nuevo", 4))
}

func TestParsePlatform(t *testing.T) {
	p, err := parsePlatform("instagram")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformInstagram, p)

	_, err = parsePlatform("myspace")
	assert.Error(t, err)
}

type staticStore struct {
	row *models.Row
	err error
}

func (s staticStore) FirstEligible(ctx context.Context) (*models.Row, error) { return s.row, s.err }
func (s staticStore) SetStatus(ctx context.Context, position int, status models.Status) bool {
	panic("peek must not write")
}

func TestPeekQueuesNeverWrites(t *testing.T) {
	rows := peekQueues(context.Background(), []coordinator.Queue{
		{Platform: models.PlatformTwitter, Store: staticStore{row: &models.Row{Identifier: "cat.jpg", Position: 2}}},
		{Platform: models.PlatformInstagram, Store: staticStore{err: errors.New("denied")}},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].row.Position)
	assert.EqualError(t, rows[1].err, "denied")
}
