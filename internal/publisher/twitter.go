package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/rs/zerolog"

	"autoposter/internal/effects"
	"autoposter/internal/models"
)

const (
	DefaultTwitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	DefaultTwitterTweetURL  = "https://api.twitter.com/2/tweets"

	tweetSucceeded = "Tweet publicado con éxito."
	tweetFailed    = "Error al publicar el tweet."

	twitterTimeout = 60 * time.Second
)

type TwitterCredentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Twitter uploads the image through the v1.1 media endpoint and creates the
// post through v2, both signed with OAuth 1.0a user context.
type Twitter struct {
	creds     TwitterCredentials
	uploadURL string
	tweetURL  string
	logger    zerolog.Logger

	once   sync.Once
	client *http.Client
}

type TwitterOption func(*Twitter)

// WithTwitterEndpoints points the publisher at other hosts, for tests.
func WithTwitterEndpoints(uploadURL, tweetURL string) TwitterOption {
	return func(t *Twitter) {
		t.uploadURL = uploadURL
		t.tweetURL = tweetURL
	}
}

// WithTwitterHTTPClient replaces the OAuth-signed client.
func WithTwitterHTTPClient(c *http.Client) TwitterOption {
	return func(t *Twitter) {
		t.once.Do(func() { t.client = c })
	}
}

func NewTwitter(creds TwitterCredentials, logger zerolog.Logger, opts ...TwitterOption) *Twitter {
	t := &Twitter{
		creds:     creds,
		uploadURL: DefaultTwitterUploadURL,
		tweetURL:  DefaultTwitterTweetURL,
		logger:    logger.With().Str("publisher", "twitter").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// httpClient builds the signed client on first use and reuses it afterwards.
func (t *Twitter) httpClient() *http.Client {
	t.once.Do(func() {
		cfg := oauth1.NewConfig(t.creds.ConsumerKey, t.creds.ConsumerSecret)
		token := oauth1.NewToken(t.creds.AccessToken, t.creds.AccessTokenSecret)
		t.client = cfg.Client(context.Background(), token)
		t.client.Timeout = twitterTimeout
	})
	return t.client
}

func (t *Twitter) Publish(ctx context.Context, caption string, img image.Image) models.Outcome {
	data, err := effects.EncodeJPEG(img)
	if err != nil {
		return models.Failure("Error: " + err.Error())
	}

	mediaID, err := t.upload(ctx, data)
	if err != nil {
		t.logger.Error().Err(err).Msg("media upload failed")
		return models.Failure("Error: " + err.Error())
	}

	tweetID, err := t.tweet(ctx, caption, mediaID)
	if err != nil {
		t.logger.Error().Err(err).Str("media_id", mediaID).Msg("create tweet failed")
		return models.Failure("Error: " + err.Error())
	}
	if tweetID == "" {
		return models.Failure(tweetFailed)
	}

	t.logger.Info().Str("tweet_id", tweetID).Msg("tweet published")
	return models.Success(tweetSucceeded)
}

func (t *Twitter) upload(ctx context.Context, jpeg []byte) (string, error) {
	const op = "publisher.Twitter.upload"

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("media", "image.jpg")
	if err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := t.do(req, &out); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("%s: empty media id", op)
	}
	return out.MediaIDString, nil
}

func (t *Twitter) tweet(ctx context.Context, text, mediaID string) (string, error) {
	const op = "publisher.Twitter.tweet"

	payload := map[string]any{
		"text":  text,
		"media": map[string]any{"media_ids": []string{mediaID}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tweetURL, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := t.do(req, &out); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	return out.Data.ID, nil
}

func (t *Twitter) do(req *http.Request, out any) error {
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, out)
}
