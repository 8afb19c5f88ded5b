package publisher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/Davincible/goinsta/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"autoposter/internal/effects"
	"autoposter/internal/models"
)

const (
	instagramSucceeded = "Publicación en Instagram realizada con éxito."
	instagramFailed    = "Error al publicar en Instagram: "

	loginInterval = time.Minute
)

var errLoginThrottled = errors.New("login attempted too recently, try again later")

// InstagramAPI is the slice of the Instagram client the publisher needs.
type InstagramAPI interface {
	Login() error
	Upload(caption string, jpeg []byte) error
}

type goinstaClient struct {
	insta *goinsta.Instagram
}

func NewGoinstaClient(username, password string) InstagramAPI {
	return &goinstaClient{insta: goinsta.New(username, password)}
}

func (c *goinstaClient) Login() error {
	return c.insta.Login()
}

func (c *goinstaClient) Upload(caption string, jpeg []byte) error {
	_, err := c.insta.Upload(&goinsta.UploadOptions{
		File:    bytes.NewReader(jpeg),
		Caption: caption,
	})
	return err
}

// session logs in at most once per process. Failed logins are throttled so
// a broken password cannot hammer the platform's auth endpoint.
type session struct {
	mu       sync.Mutex
	api      InstagramAPI
	loggedIn bool
	limiter  *rate.Limiter
}

func newSession(api InstagramAPI) *session {
	return &session{api: api, limiter: rate.NewLimiter(rate.Every(loginInterval), 1)}
}

func (s *session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *session) acquire() (InstagramAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedIn {
		return s.api, nil
	}
	if !s.limiter.Allow() {
		return nil, errLoginThrottled
	}
	if err := s.api.Login(); err != nil {
		return nil, err
	}
	s.loggedIn = true
	return s.api, nil
}

type Instagram struct {
	session *session
	logger  zerolog.Logger
}

func NewInstagram(api InstagramAPI, logger zerolog.Logger) *Instagram {
	return &Instagram{
		session: newSession(api),
		logger:  logger.With().Str("publisher", "instagram").Logger(),
	}
}

func (i *Instagram) Publish(ctx context.Context, caption string, img image.Image) models.Outcome {
	if err := ctx.Err(); err != nil {
		return models.Failure(instagramFailed + err.Error())
	}

	api, err := i.session.acquire()
	if err != nil {
		i.logger.Error().Err(err).Msg("instagram login failed")
		return models.Failure(instagramFailed + err.Error())
	}

	data, err := effects.EncodeJPEG(img)
	if err != nil {
		return models.Failure(instagramFailed + err.Error())
	}
	if err := api.Upload(caption, data); err != nil {
		i.logger.Error().Err(err).Msg("instagram upload failed")
		return models.Failure(instagramFailed + err.Error())
	}

	i.logger.Info().Msg("instagram post published")
	return models.Success(instagramSucceeded)
}
