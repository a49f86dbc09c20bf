// Package handlers exposes the download core over HTTP: JSON endpoints for
// metadata and job control, an SSE stream and a websocket mirror for live
// progress.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dammysspp/YT-SP/internal/config"
	"github.com/dammysspp/YT-SP/internal/events"
	"github.com/dammysspp/YT-SP/internal/models"
	"github.com/dammysspp/YT-SP/internal/registry"
	"github.com/dammysspp/YT-SP/internal/scheduler"
)

const keepaliveInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the middleware, not the upgrader
	},
}

// Resolver is the metadata side consumed by the info endpoint.
type Resolver interface {
	Resolve(ctx context.Context, urls []string) []models.ResolveResult
}

// JobController is the scheduler surface the handlers drive.
type JobController interface {
	Submit(requests []scheduler.Request) []string
	Cancel(id string) error
}

// HistoryStore is the persisted history surface.
type HistoryStore interface {
	List(limit int) ([]models.HistoryEntry, error)
	Clear() error
}

// Handler carries the service objects for all routes. Everything is injected;
// there is no package-level state.
type Handler struct {
	cfg       *config.Config
	resolver  Resolver
	registry  *registry.Registry
	scheduler JobController
	history   HistoryStore
	events    *events.Broadcaster
}

// New wires the handler to its collaborators.
func New(cfg *config.Config, res Resolver, reg *registry.Registry, sched JobController, hist HistoryStore, bc *events.Broadcaster) *Handler {
	return &Handler{
		cfg:       cfg,
		resolver:  res,
		registry:  reg,
		scheduler: sched,
		history:   hist,
		events:    bc,
	}
}

// Register attaches all API routes to the router.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/info", h.Info)
		api.POST("/download", h.Download)
		api.GET("/status", h.Status)
		api.GET("/status/:id", h.StatusByID)
		api.POST("/cancel/:id", h.Cancel)
		api.GET("/events", h.Events)
		api.GET("/history", h.History)
		api.POST("/clear-history", h.ClearHistory)
		api.GET("/config", h.ServerConfig)
	}
	r.GET("/ws", h.WS)
}

// Info resolves metadata for a batch of URLs, one ordered slot per input.
func (h *Handler) Info(c *gin.Context) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := c.BindJSON(&req); err != nil || len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No URLs provided"})
		return
	}

	results := h.resolver.Resolve(c.Request.Context(), req.URLs)

	slots := make([]any, 0, len(results))
	for _, res := range results {
		switch {
		case res.Err != nil:
			slots = append(slots, gin.H{"error": res.Err.Error(), "url": res.URL})
		case res.Info.IsPlaylist:
			slots = append(slots, gin.H{
				"success":           true,
				"is_playlist":       true,
				"playlist_title":    res.Info.PlaylistTitle,
				"playlist_uploader": res.Info.PlaylistUploader,
				"playlist_url":      res.Info.PlaylistURL,
				"video_count":       len(res.Info.Videos),
				"videos":            res.Info.Videos,
			})
		default:
			slots = append(slots, res.Info.Video)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "videos": slots})
}

// downloadItem is one entry of a batch download request.
type downloadItem struct {
	URL string `json:"url"`
	models.JobOptions
}

// Download queues a batch of downloads with per-item settings and responds
// with the job ids in submission order. Invalid URLs are skipped, matching
// resolver-side validation.
func (h *Handler) Download(c *gin.Context) {
	var req struct {
		Downloads   []downloadItem `json:"downloads"`
		DownloadDir string         `json:"download_dir"`
	}
	if err := c.BindJSON(&req); err != nil || len(req.Downloads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No downloads specified"})
		return
	}

	globalDir := req.DownloadDir
	if globalDir == "" {
		globalDir = h.cfg.DownloadDir
	}

	requests := make([]scheduler.Request, 0, len(req.Downloads))
	for _, item := range req.Downloads {
		if !models.ValidateURL(item.URL) {
			continue
		}
		opts := item.JobOptions
		if opts.DownloadDir == "" {
			opts.DownloadDir = globalDir
		}
		if opts.Resolution == "" {
			opts.Resolution = "best"
		}
		if opts.Format == "" {
			opts.Format = "mp4"
		}
		if opts.AudioBitrate == "" {
			opts.AudioBitrate = "192"
		}
		requests = append(requests, scheduler.Request{URL: item.URL, Options: opts})
	}
	if len(requests) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid URLs provided"})
		return
	}

	ids := h.scheduler.Submit(requests)
	log.Printf("queued %d download(s)", len(ids))

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Started %d download(s)", len(ids)),
		"download_ids": ids,
	})
}

// Status returns a snapshot of all jobs in submission order.
func (h *Handler) Status(c *gin.Context) {
	jobs := h.registry.List()
	c.JSON(http.StatusOK, gin.H{"downloads": jobs, "total": len(jobs)})
}

// StatusByID returns one job or 404.
func (h *Handler) StatusByID(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel requests best-effort cancellation. Queued jobs are cancelled before
// the response is written; running jobs reach the terminal state once the
// capability tears down, observable on the event stream.
func (h *Handler) Cancel(c *gin.Context) {
	err := h.scheduler.Cancel(c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Download cancelled"})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
	case errors.Is(err, registry.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Download already finished"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Events streams progress over SSE. The first message is the connected
// handshake carrying this observer's client id.
func (h *Handler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	client := h.events.Subscribe()
	defer h.events.Unsubscribe(client)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case ev, open := <-client.Events():
			if !open {
				return
			}
			c.SSEvent("", ev)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

// WS mirrors the event stream over a websocket for clients that prefer it.
func (h *Handler) WS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("websocket upgrade:", err)
		return
	}
	defer ws.Close()

	client := h.events.Subscribe()
	defer h.events.Unsubscribe(client)

	// Read pump: client messages are not expected, but reading surfaces the
	// close frame so the writer below can exit.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-client.Events():
			if !open {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// History lists the most recent finished downloads.
func (h *Handler) History(c *gin.Context) {
	entries, err := h.history.List(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": entries})
}

// ClearHistory wipes the history store.
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "History cleared"})
}

// ServerConfig reports defaults the frontend needs to build its forms.
func (h *Handler) ServerConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default_download_dir": h.cfg.DownloadDir,
		"supported_formats":    h.cfg.SupportedFormats(),
		"supported_bitrates":   h.cfg.SupportedBitrates(),
		"max_concurrent":       h.cfg.MaxConcurrent,
	})
}
