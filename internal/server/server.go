// Package server exposes a session over HTTP: status, generation, merged
// audio downloads, Prometheus metrics and the synthesis worker over
// WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/history"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/metrics"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

// Handler serves one session.
type Handler struct {
	session *session.Session
	bridge  http.Handler
	history *history.Store
	logger  *log.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithBridge mounts a synthesis worker bridge on /synth.
func WithBridge(b *synth.WSBridge) Option {
	return func(h *Handler) { h.bridge = b }
}

// WithHistory serves /history from store.
func WithHistory(store *history.Store) Option {
	return func(h *Handler) { h.history = store }
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a handler for s.
func NewHandler(s *session.Session, opts ...Option) *Handler {
	h := &Handler{session: s, logger: log.WithPrefix("http")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.requestLog())

	r.GET("/status", h.HandleStatus)
	r.GET("/voices", h.HandleVoices)
	r.POST("/generate", h.HandleGenerate)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	art := r.Group("/artifact")
	{
		art.GET("/current", h.HandleCurrentArtifact)
		art.GET("/:id", h.HandleArtifact)
	}

	if h.history != nil {
		r.GET("/history", h.HandleHistory)
	}
	if h.bridge != nil {
		r.GET("/synth", gin.WrapH(h.bridge))
	}
	return r
}

// requestLog logs through charmbracelet/log instead of gin's writer.
func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" {
			return
		}
		h.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

// StatusResponse is the JSON shape of /status.
type StatusResponse struct {
	Status     string           `json:"status"`
	Progress   session.Progress `json:"progress"`
	Error      string           `json:"error,omitempty"`
	Device     string           `json:"device"`
	Sentence   string           `json:"sentence,omitempty"`
	Transport  string           `json:"transport"`
	Position   float64          `json:"position"`
	Total      float64          `json:"total"`
	Generating bool             `json:"generating"`
	Elapsed    float64          `json:"elapsed"`
	Format     string           `json:"format,omitempty"`
	Artifact   *ArtifactInfo    `json:"artifact,omitempty"`
}

// ArtifactInfo describes the current merged file.
type ArtifactInfo struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Chunks   int     `json:"chunks"`
	Size     string  `json:"size"`
}

// HandleStatus reports the session snapshot.
func (h *Handler) HandleStatus(c *gin.Context) {
	snap := h.session.Snapshot()
	resp := StatusResponse{
		Status:     string(snap.Status),
		Progress:   snap.Progress,
		Error:      snap.Error,
		Device:     snap.Device,
		Sentence:   snap.Sentence,
		Transport:  snap.Playback.State.String(),
		Position:   snap.Playback.Position.Seconds(),
		Total:      snap.Playback.Total.Seconds(),
		Generating: snap.Playback.Generating,
		Elapsed:    snap.Elapsed().Seconds(),
	}
	if snap.Format != nil {
		resp.Format = snap.Format.String()
	}
	if a := snap.Artifact; a != nil {
		resp.Artifact = artifactInfo(a)
	}
	c.JSON(http.StatusOK, resp)
}

func artifactInfo(a *export.Artifact) *ArtifactInfo {
	return &ArtifactInfo{
		ID:       a.ID,
		URL:      "/artifact/" + a.ID,
		Duration: a.Duration.Seconds(),
		Chunks:   a.Chunks,
		Size:     humanize.Bytes(uint64(a.Size())),
	}
}

// HandleVoices lists the worker's voices.
func (h *Handler) HandleVoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": h.session.Voices()})
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice" binding:"required"`
}

// HandleGenerate runs a request and waits for it to finish.
func (h *Handler) HandleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.session.Generate(c.Request.Context(), req.Text, req.Voice)
	switch {
	case err == nil:
	case session.Code(err) == session.CodeInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, context.Canceled):
		c.JSON(499, gin.H{"error": "client closed request"})
		return
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": h.session.Snapshot().Error, "detail": err.Error()})
		return
	}

	body := gin.H{
		"id":       res.ID,
		"chunks":   res.Chunks,
		"duration": res.Duration.Seconds(),
	}
	if res.Artifact != nil {
		body["artifact"] = artifactInfo(res.Artifact)
	}
	c.JSON(http.StatusOK, body)
}

// HandleCurrentArtifact downloads the valid merged file.
func (h *Handler) HandleCurrentArtifact(c *gin.Context) {
	a, err := h.session.Artifacts().Current()
	h.serveArtifact(c, a, err)
}

// HandleArtifact downloads a merged file by handle. Superseded handles
// answer 410 Gone.
func (h *Handler) HandleArtifact(c *gin.Context) {
	a, err := h.session.Artifacts().Get(c.Param("id"))
	h.serveArtifact(c, a, err)
}

func (h *Handler) serveArtifact(c *gin.Context, a *export.Artifact, err error) {
	switch {
	case errors.Is(err, export.ErrRevoked):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="speech-%s.wav"`, a.ID[:8]))
	c.Header("X-Audio-Duration", strconv.FormatFloat(a.Duration.Seconds(), 'f', 3, 64))
	c.Data(http.StatusOK, "audio/wav", a.Data)
}

// HandleHistory lists recent generations. ?limit= defaults to 20.
func (h *Handler) HandleHistory(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list history", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}
