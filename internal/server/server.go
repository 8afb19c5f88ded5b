package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"autoposter/internal/coordinator"
	"autoposter/internal/effects"
	"autoposter/internal/models"
	"autoposter/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Coordinator interface {
	Publish(ctx context.Context, platform models.Platform, effect string) (coordinator.Result, error)
	Discard(ctx context.Context, platform models.Platform) (coordinator.Result, error)
	Preview(ctx context.Context, platform models.Platform) (coordinator.Preview, error)
}

type History interface {
	Recent(ctx context.Context, limit int) ([]storage.Attempt, error)
}

type Server struct {
	router  *gin.Engine
	http    *http.Server
	coord   Coordinator
	history History
	metrics http.Handler
	logger  zerolog.Logger
}

type Option func(*Server)

// WithHistory enables GET /history.
func WithHistory(h History) Option { return func(s *Server) { s.history = h } }

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// page describes one queue's review page and its action routes.
type page struct {
	platform models.Platform
	title    string
	path     string
	publish  string
	discard  string
}

var pages = []page{
	{platform: models.PlatformTwitter, title: "Twitter", path: "/", publish: "/tweet", discard: "/discard_tweet"},
	{platform: models.PlatformInstagram, title: "Instagram", path: "/instagram", publish: "/instagram_post", discard: "/discard_instagram_post"},
}

func NewServer(addr string, coord Coordinator, logger zerolog.Logger, opts ...Option) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		router: r,
		coord:  coord,
		logger: logger.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	r.Use(s.requestLogger())
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	for _, p := range pages {
		r.GET(p.path, s.handlePage(p))
		r.POST(p.publish, s.handlePublish(p.platform))
		r.POST(p.discard, s.handleDiscard(p.platform))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/history", s.handleHistory)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handlePage(p page) gin.HandlerFunc {
	return func(c *gin.Context) {
		preview, err := s.coord.Preview(c.Request.Context(), p.platform)
		if err != nil {
			s.logger.Error().Err(err).Str("platform", string(p.platform)).Msg("preview failed")
			c.String(http.StatusInternalServerError, "configuration error")
			return
		}
		images := make(map[string]template.URL, len(preview.Images))
		for name, b64 := range preview.Images {
			images[name] = template.URL("data:image/jpeg;base64," + b64)
		}
		c.HTML(http.StatusOK, "queue.html", gin.H{
			"Title":       p.title,
			"Row":         preview.Row,
			"Images":      images,
			"Effects":     effects.Names,
			"PublishPath": p.publish,
			"DiscardPath": p.discard,
		})
	}
}

func (s *Server) handlePublish(platform models.Platform) gin.HandlerFunc {
	return func(c *gin.Context) {
		effect := c.PostForm("effect")
		if effect == "" {
			effect = c.DefaultQuery("effect", effects.Original)
		}

		res, err := s.coord.Publish(c.Request.Context(), platform, effect)
		if err != nil {
			switch {
			case errors.Is(err, coordinator.ErrUnknownEffect):
				c.JSON(http.StatusBadRequest, gin.H{"result": "Unknown effect: " + effect})
			default:
				s.logger.Error().Err(err).Str("platform", string(platform)).Msg("publish not started")
				c.JSON(http.StatusInternalServerError, gin.H{"result": "Configuration error"})
			}
			return
		}
		c.JSON(publishStatus(res.State), gin.H{"result": res.Message})
	}
}

func (s *Server) handleDiscard(platform models.Platform) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.coord.Discard(c.Request.Context(), platform)
		if err != nil {
			s.logger.Error().Err(err).Str("platform", string(platform)).Msg("discard not started")
			c.JSON(http.StatusInternalServerError, gin.H{"result": "Configuration error"})
			return
		}
		c.JSON(discardStatus(res.State), gin.H{"result": res.Message})
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	const op = "server.handleHistory"

	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publish ledger is not configured"})
		return
	}
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	attempts, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("op", op).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if attempts == nil {
		attempts = []storage.Attempt{}
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// publishStatus maps a coordinator state to the HTTP code of the manual flow.
// A failed post is still a 200: the message carries the platform's answer.
func publishStatus(state coordinator.State) int {
	switch state {
	case coordinator.StateNoPending, coordinator.StatePendingNoAsset:
		return http.StatusBadRequest
	case coordinator.StateClaimed:
		return http.StatusConflict
	case coordinator.StateDecodeFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func discardStatus(state coordinator.State) int {
	switch state {
	case coordinator.StateNoPending:
		return http.StatusBadRequest
	case coordinator.StateClaimed:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}
