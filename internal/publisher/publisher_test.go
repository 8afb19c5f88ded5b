package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/models"
)

func testImage() image.Image {
	return imaging.New(16, 16, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
}

func newTwitterServer(t *testing.T, tweetStatus int, tweetBody string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var tweets []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("media")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "image.jpg" || len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
			http.Error(w, "not a jpeg", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"media_id": 42, "media_id_string": "42"}`))
	})
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		tweets = append(tweets, payload)
		w.WriteHeader(tweetStatus)
		_, _ = w.Write([]byte(tweetBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tweets
}

func newTestTwitter(srv *httptest.Server) *Twitter {
	return NewTwitter(TwitterCredentials{}, zerolog.Nop(),
		WithTwitterEndpoints(srv.URL+"/upload", srv.URL+"/tweets"),
		WithTwitterHTTPClient(srv.Client()),
	)
}

func TestTwitterPublish(t *testing.T) {
	srv, tweets := newTwitterServer(t, http.StatusCreated, `{"data":{"id":"1001","text":"hello"}}`)

	out := newTestTwitter(srv).Publish(context.Background(), "hello", testImage())
	assert.True(t, out.Succeeded)
	assert.Equal(t, "Tweet publicado con éxito.", out.Message)

	require.Len(t, *tweets, 1)
	assert.Equal(t, "hello", (*tweets)[0]["text"])
	media := (*tweets)[0]["media"].(map[string]any)
	assert.Equal(t, []any{"42"}, media["media_ids"])
}

func TestTwitterPublishRejected(t *testing.T) {
	srv, _ := newTwitterServer(t, http.StatusForbidden, `{"detail":"duplicate content"}`)

	out := newTestTwitter(srv).Publish(context.Background(), "hello", testImage())
	assert.False(t, out.Succeeded)
	assert.True(t, strings.HasPrefix(out.Message, "Error: "))
	assert.Contains(t, out.Message, "duplicate content")
}

func TestTwitterPublishWithoutID(t *testing.T) {
	srv, _ := newTwitterServer(t, http.StatusOK, `{"data":{}}`)

	out := newTestTwitter(srv).Publish(context.Background(), "hello", testImage())
	assert.False(t, out.Succeeded)
	assert.Equal(t, "Error al publicar el tweet.", out.Message)
}

type fakeInstagram struct {
	logins    int
	loginErr  error
	uploads   []string
	uploadErr error
}

func (f *fakeInstagram) Login() error {
	f.logins++
	return f.loginErr
}

func (f *fakeInstagram) Upload(caption string, jpeg []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, caption)
	return nil
}

func TestInstagramLogsInOnce(t *testing.T) {
	api := &fakeInstagram{}
	ig := NewInstagram(api, zerolog.Nop())
	assert.False(t, ig.session.Ready())

	for i := 0; i < 3; i++ {
		out := ig.Publish(context.Background(), "caption", testImage())
		require.True(t, out.Succeeded)
		assert.Equal(t, "Publicación en Instagram realizada con éxito.", out.Message)
	}
	assert.Equal(t, 1, api.logins)
	assert.True(t, ig.session.Ready())
	assert.Len(t, api.uploads, 3)
}

func TestInstagramFailedLoginIsThrottled(t *testing.T) {
	api := &fakeInstagram{loginErr: errors.New("bad password")}
	ig := NewInstagram(api, zerolog.Nop())

	out := ig.Publish(context.Background(), "caption", testImage())
	assert.False(t, out.Succeeded)
	assert.Equal(t, "Error al publicar en Instagram: bad password", out.Message)

	out = ig.Publish(context.Background(), "caption", testImage())
	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Message, "too recently")
	assert.Equal(t, 1, api.logins)
}

func TestInstagramUploadFailure(t *testing.T) {
	api := &fakeInstagram{uploadErr: errors.New("feedback_required")}
	out := NewInstagram(api, zerolog.Nop()).Publish(context.Background(), "caption", testImage())

	assert.False(t, out.Succeeded)
	assert.Equal(t, "Error al publicar en Instagram: feedback_required", out.Message)
}

func TestGuardOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	failing := Func(func(ctx context.Context, caption string, img image.Image) models.Outcome {
		calls++
		return models.Failure("Error: boom")
	})
	g := NewGuard("twitter", failing, zerolog.Nop())

	for i := 0; i < 3; i++ {
		out := g.Publish(context.Background(), "x", testImage())
		assert.Equal(t, "Error: boom", out.Message)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	out := g.Publish(context.Background(), "x", testImage())
	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Message, "suspendida")
	assert.Equal(t, 3, calls)
}

func TestGuardPassesSuccessThrough(t *testing.T) {
	ok := Func(func(ctx context.Context, caption string, img image.Image) models.Outcome {
		return models.Success("done")
	})
	out := NewGuard("instagram", ok, zerolog.Nop()).Publish(context.Background(), "x", testImage())
	assert.Equal(t, models.Success("done"), out)
}
