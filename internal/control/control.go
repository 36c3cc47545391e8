// Package control receives pipeline commands over HTTP. Commands are
// queued and drained by the driving loop between iterations; the queue
// doubles as a reactor source so an idle loop wakes up when a command
// arrives.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/framewire/internal/config"
)

// Well-known command names. The receiver itself does not interpret
// them; the driving loop does.
const (
	CmdStartRecording = "startRecording"
	CmdStopRecording  = "stopRecording"
	CmdStop           = "stop"
)

// Command is one received instruction. Payload carries the form value
// verbatim; the receiver never validates it.
type Command struct {
	Name    string
	Payload string
}

// Receiver is the control HTTP server plus the pending-command queue.
type Receiver struct {
	logger *slog.Logger
	cfg    config.ControlConfig

	mu    sync.Mutex
	queue []Command

	ready chan struct{}
	srv   *http.Server
}

// NewReceiver creates a control receiver listening per cfg.
func NewReceiver(cfg config.ControlConfig, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Receiver{
		logger: logger.With(slog.String("component", "control")),
		cfg:    cfg,
		ready:  make(chan struct{}, 1),
	}
	r.srv = &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler: r.Routes(),
	}
	return r
}

// Name implements reactor.Source.
func (r *Receiver) Name() string { return "control" }

// Ready implements reactor.Source. It fires when the queue goes from
// empty to non-empty.
func (r *Receiver) Ready() <-chan struct{} { return r.ready }

// Routes builds the chi router.
func (r *Receiver) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Post("/commands", r.handleCommands)
	return router
}

func (r *Receiver) handleCommands(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}
	if len(req.PostForm) == 0 {
		http.Error(w, "no commands", http.StatusBadRequest)
		return
	}

	// Form fields arrive in map order; queue them by priority so a
	// stop in the same request always runs first.
	cmds := make([]Command, 0, len(req.PostForm))
	for name, values := range req.PostForm {
		for _, v := range values {
			cmds = append(cmds, Command{Name: name, Payload: v})
		}
	}
	sort.SliceStable(cmds, func(i, j int) bool {
		ri, rj := commandRank(cmds[i].Name), commandRank(cmds[j].Name)
		if ri != rj {
			return ri < rj
		}
		return cmds[i].Name < cmds[j].Name
	})

	for _, cmd := range cmds {
		r.enqueue(cmd)
		r.logger.Info("command received",
			slog.String("command", cmd.Name),
			slog.String("remote_addr", req.RemoteAddr),
		)
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// commandRank orders commands within one request: stop beats any
// recording change, and a recording stops before a new one starts.
func commandRank(name string) int {
	switch name {
	case CmdStop:
		return 0
	case CmdStopRecording:
		return 1
	case CmdStartRecording:
		return 2
	default:
		return 3
	}
}

func (r *Receiver) enqueue(cmd Command) {
	r.mu.Lock()
	r.queue = append(r.queue, cmd)
	r.mu.Unlock()

	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Drain returns all pending commands in arrival order and empties the
// queue. Called by the driving loop between iterations.
func (r *Receiver) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	return out
}

// Pending returns the number of queued commands.
func (r *Receiver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Start runs the listener until Shutdown.
func (r *Receiver) Start() error {
	r.logger.Info("control server listening", slog.String("addr", r.srv.Addr))
	if err := r.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

// Shutdown drains connections.
func (r *Receiver) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.srv.Shutdown(ctx)
}
