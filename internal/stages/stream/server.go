package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/framewire/internal/config"
)

const mjpegBoundary = "framewireframe"

// Server exposes the live stream and its statistics over HTTP. Either
// broadcast may be nil when the configured pipeline does not produce
// that output; the matching endpoint then returns 404.
type Server struct {
	logger *slog.Logger
	cfg    config.StreamConfig
	ts     *Broadcast
	mjpeg  *Broadcast
	srv    *http.Server
}

// NewServer creates the stream HTTP server.
func NewServer(cfg config.StreamConfig, logger *slog.Logger, ts, mjpeg *Broadcast) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger: logger.With(slog.String("component", "stream-server")),
		cfg:    cfg,
		ts:     ts,
		mjpeg:  mjpeg,
	}
	s.srv = &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler: s.Routes(),
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/stream.ts", s.handleTS)
	r.Get("/stream.mjpeg", s.handleMJPEG)
	r.Get("/stats", s.handleStats)
	return r
}

// Start runs the listener until Shutdown. It returns on listener
// failure; http.ErrServerClosed is swallowed.
func (s *Server) Start() error {
	s.logger.Info("stream server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stream server: %w", err)
	}
	return nil
}

// Shutdown drains connections within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleTS(w http.ResponseWriter, r *http.Request) {
	if s.ts == nil {
		http.NotFound(w, r)
		return
	}

	client, err := s.ts.Subscribe(r.RemoteAddr)
	if err != nil {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer s.ts.Unsubscribe(client.ID)

	s.logger.Info("ts client connected",
		slog.String("client_id", client.ID.String()),
		slog.String("remote_addr", r.RemoteAddr),
	)
	defer s.logger.Info("ts client disconnected",
		slog.String("client_id", client.ID.String()),
	)

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	// Push the headers out before blocking on the broadcast, or an
	// idle pipeline leaves the client with no response at all.
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	for {
		chunks, err := s.ts.Next(r.Context(), client)
		if err != nil {
			return
		}
		for _, chunk := range chunks {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	if s.mjpeg == nil {
		http.NotFound(w, r)
		return
	}

	client, err := s.mjpeg.Subscribe(r.RemoteAddr)
	if err != nil {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer s.mjpeg.Unsubscribe(client.ID)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	for {
		frames, err := s.mjpeg.Next(r.Context(), client)
		if err != nil {
			return
		}
		for _, frame := range frames {
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// statsResponse is the /stats payload.
type statsResponse struct {
	TS     *BroadcastStats `json:"ts,omitempty"`
	MJPEG  *BroadcastStats `json:"mjpeg,omitempty"`
	System systemStats     `json:"system"`
}

type systemStats struct {
	Goroutines    int     `json:"goroutines"`
	Load1         float64 `json:"load1,omitempty"`
	Load5         float64 `json:"load5,omitempty"`
	Load15        float64 `json:"load15,omitempty"`
	MemoryPercent float64 `json:"memory_percent,omitempty"`
	MemoryUsed    uint64  `json:"memory_used_bytes,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		System: systemStats{Goroutines: runtime.NumGoroutine()},
	}
	if s.ts != nil {
		st := s.ts.Stats()
		resp.TS = &st
	}
	if s.mjpeg != nil {
		st := s.mjpeg.Stats()
		resp.MJPEG = &st
	}
	if avg, err := load.AvgWithContext(r.Context()); err == nil {
		resp.System.Load1 = avg.Load1
		resp.System.Load5 = avg.Load5
		resp.System.Load15 = avg.Load15
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.System.MemoryPercent = vm.UsedPercent
		resp.System.MemoryUsed = vm.Used
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encoding stats response", slog.String("error", err.Error()))
	}
}

// BroadcastConfigFromStream maps the stream section of the config onto
// broadcast buffer limits, falling back to defaults for zero values.
func BroadcastConfigFromStream(cfg config.StreamConfig) BroadcastConfig {
	out := DefaultBroadcastConfig()
	if cfg.MaxBufferSize > 0 {
		out.MaxBytes = cfg.MaxBufferSize.Int64()
	}
	if cfg.MaxChunks > 0 {
		out.MaxChunks = cfg.MaxChunks
	}
	if cfg.ClientTimeout > 0 {
		out.ClientTimeout = cfg.ClientTimeout
	}
	return out
}
