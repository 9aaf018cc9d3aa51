// Package server exposes a file library over HTTP: a JSON API for browsing,
// a websocket endpoint that streams demuxed packets in real time, and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retromux/retromux/internal/config"
	"github.com/retromux/retromux/internal/metrics"
	"github.com/retromux/retromux/media"
	"github.com/retromux/retromux/mve"
	"github.com/retromux/retromux/pipeline"
	"github.com/retromux/retromux/stream"
)

// playback is one running demux of a library file, shared by every viewer
// watching that file.
type playback struct {
	name     string
	relay    *Relay
	pipeline *pipeline.Pipeline
	cancel   context.CancelFunc
}

// Server owns the HTTP surface and the registry of running playbacks.
type Server struct {
	log     *slog.Logger
	cfg     *config.Config
	manager *stream.Manager
	metrics *metrics.Metrics

	mu        sync.Mutex
	playbacks map[string]*playback

	httpServer *http.Server
}

// New creates a Server for the given configuration. If m is nil a fresh
// metrics set is registered.
func New(cfg *config.Config, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		log:       slog.With("component", "server"),
		cfg:       cfg,
		manager:   stream.NewManager(nil),
		metrics:   m,
		playbacks: make(map[string]*playback),
	}
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.manager.Len()})
	})
	r.GET("/api/files", s.handleListFiles)
	r.GET("/api/streams", s.handleListStreams)
	r.GET("/ws/:name", s.handleWebSocket)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Run serves HTTP until ctx is cancelled, then drains with a short timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}

// fileEntry describes one playable file in the library.
type fileEntry struct {
	Name    string `json:"name"`
	SizeB   int64  `json:"size_bytes"`
	Playing bool   `json:"playing"`
}

func (s *Server) handleListFiles(c *gin.Context) {
	entries, err := os.ReadDir(s.cfg.Library.Dir)
	if err != nil {
		s.metrics.HTTPRequests.WithLabelValues("/api/files", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "library unavailable"})
		return
	}

	s.mu.Lock()
	playing := make(map[string]bool, len(s.playbacks))
	for name := range s.playbacks {
		playing[name] = true
	}
	s.mu.Unlock()

	files := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), s.cfg.Library.Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{
			Name:    e.Name(),
			SizeB:   info.Size(),
			Playing: playing[e.Name()],
		})
	}

	s.metrics.HTTPRequests.WithLabelValues("/api/files", "200").Inc()
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// streamStatus combines pipeline counters with per-viewer delivery stats.
type streamStatus struct {
	Pipeline pipeline.Snapshot `json:"pipeline"`
	Viewers  []ViewerStats     `json:"viewers"`
}

func (s *Server) handleListStreams(c *gin.Context) {
	s.mu.Lock()
	statuses := make([]streamStatus, 0, len(s.playbacks))
	for _, pb := range s.playbacks {
		statuses = append(statuses, streamStatus{
			Pipeline: pb.pipeline.Snapshot(),
			Viewers:  pb.relay.ViewerStatsAll(),
		})
	}
	s.mu.Unlock()

	s.metrics.HTTPRequests.WithLabelValues("/api/streams", "200").Inc()
	c.JSON(http.StatusOK, gin.H{"streams": statuses})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	name := filepath.Base(c.Param("name"))
	if !strings.HasSuffix(name, s.cfg.Library.Extension) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	path := filepath.Join(s.cfg.Library.Dir, name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if s.manager.Len() >= s.cfg.Server.MaxViewers {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "viewer limit reached"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	pb, err := s.acquirePlayback(name, path)
	if err != nil {
		s.log.Error("playback start failed", "file", name, "error", err)
		conn.Close(websocket.StatusInternalError, "cannot open file")
		return
	}

	ctx := c.Request.Context()
	if !pb.relay.WaitVideoInfo(ctx) {
		return
	}

	ws := NewWSSession(conn)
	sess := s.manager.Create(name)
	s.metrics.SessionsCreated.Inc()
	s.metrics.ActiveSessions.Inc()
	defer func() {
		pb.relay.RemoveViewer(ws.ID())
		s.manager.Remove(sess.ID)
		s.metrics.ActiveSessions.Dec()
		s.metrics.SessionDuration.Observe(time.Since(sess.StartedAt).Seconds())
		st := ws.Stats()
		s.metrics.PacketsDropped.WithLabelValues(media.StreamVideo.String()).Add(float64(st.VideoDropped))
		s.metrics.PacketsDropped.WithLabelValues(media.StreamAudio.String()).Add(float64(st.AudioDropped))
	}()

	attachViewer(pb.relay, ws)

	// The read side only watches for the client going away.
	readCtx := conn.CloseRead(ctx)
	if err := ws.WriteLoop(readCtx); err != nil && readCtx.Err() == nil {
		s.log.Debug("session write ended", "session", ws.ID(), "error", err)
	}
}

// attachViewer publishes the stream descriptors and current palette to ws,
// then registers it with the relay. A palette broadcast can land between the
// snapshot and registration, where the viewer would miss it until the next
// palette change, so the palette is re-checked after registration.
func attachViewer(r *Relay, ws *WSSession) {
	video, _ := r.VideoInfo()
	var audio *media.AudioDescriptor
	if a, ok := r.AudioInfo(); ok {
		audio = &a
	}

	pal := r.LatestPalette()
	ws.SendInfo(video, audio, pal)
	r.AddViewer(ws)
	if cur := r.LatestPalette(); cur != nil && cur != pal {
		ws.queuePalette(cur)
	}
}

// acquirePlayback returns the running playback for name, starting one if
// needed. Playbacks are shared: every viewer of the same file sees the same
// live position.
func (s *Server) acquirePlayback(name, path string) (*playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pb, ok := s.playbacks[name]; ok {
		return pb, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d, err := mve.NewDemuxer(ctx, f)
	if err != nil {
		cancel()
		f.Close()
		return nil, err
	}

	relay := NewRelay()
	chain := NewPacer(ctx, s.instrument(relay))
	p := pipeline.New(name, d, chain)
	pb := &playback{name: name, relay: relay, pipeline: p, cancel: cancel}
	s.playbacks[name] = pb

	go func() {
		defer f.Close()
		defer cancel()
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			s.metrics.DemuxErrors.Inc()
			s.log.Error("playback failed", "file", name, "error", err)
		} else {
			s.metrics.PlaybacksEnded.Inc()
		}
		s.mu.Lock()
		delete(s.playbacks, name)
		s.mu.Unlock()
	}()

	s.log.Info("playback started", "file", name)
	return pb, nil
}

// StopAll cancels every running playback. Used during shutdown.
func (s *Server) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pb := range s.playbacks {
		pb.cancel()
	}
}
