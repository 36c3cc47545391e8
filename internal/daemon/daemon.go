// Package daemon owns the driving loop: a reactor dispatching over
// the capture device and the control command queue, pulling frames
// through the typed pipeline one iteration at a time. Everything the
// pipeline does happens on this single goroutine; only device pumps
// and HTTP handlers run elsewhere.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/jmylchreest/framewire/internal/config"
	"github.com/jmylchreest/framewire/internal/control"
	"github.com/jmylchreest/framewire/internal/observability"
	"github.com/jmylchreest/framewire/internal/reactor"
	"github.com/jmylchreest/framewire/internal/stages/stream"
)

// Daemon ties the pipeline, reactor and servers together.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	reactor  *reactor.Reactor
	pipe     *pipelineHandle
	control  *control.Receiver
	streamer *stream.Server
}

// New builds a daemon for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pipe, err := buildPipeline(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "daemon")),
		reactor:  reactor.New(logger),
		pipe:     pipe,
		control:  control.NewReceiver(cfg.Control, logger),
		streamer: stream.NewServer(cfg.Stream, logger, pipe.tsBroadcast, pipe.mjpegBroadcast),
	}, nil
}

// Run starts the pipeline and blocks in the driving loop until a stop
// command, a termination signal, or a pipeline fault.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.pipe.start(); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	if err := d.reactor.Register(d.pipe.source); err != nil {
		return err
	}
	if err := d.reactor.Register(d.control); err != nil {
		return err
	}

	go func() {
		if err := d.control.Start(); err != nil {
			d.logger.Error("control server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()
	go func() {
		if err := d.streamer.Start(); err != nil {
			d.logger.Error("stream server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	sd.SdNotify(false, sd.SdNotifyReady)
	d.logger.Info("pipeline running",
		slog.String("device", d.cfg.Capture.Device),
		slog.String("format", d.cfg.Capture.Format),
		slog.Int("width", d.cfg.Capture.Width),
		slog.Int("height", d.cfg.Capture.Height),
	)

	var runErr error
	for {
		if _, err := d.reactor.CatchNextEvent(ctx); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				runErr = err
			}
			break
		}

		for _, cmd := range d.control.Drain() {
			d.applyCommand(cmd, cancel)
		}
		if ctx.Err() != nil {
			break
		}

		if err := d.pipe.tick(); err != nil {
			d.logger.Error("pipeline fault", slog.String("error", err.Error()))
			runErr = err
			break
		}
	}

	d.shutdown()
	return runErr
}

// applyCommand interprets one queued control command.
func (d *Daemon) applyCommand(cmd control.Command, cancel context.CancelFunc) {
	switch cmd.Name {
	case control.CmdStartRecording:
		path := d.recordingPath(cmd.Payload)
		if err := d.pipe.startRecording(path); err != nil {
			d.logger.Warn("start recording rejected",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	case control.CmdStopRecording:
		if err := d.pipe.stopRecording(); err != nil {
			d.logger.Warn("stop recording failed", slog.String("error", err.Error()))
		}
	case control.CmdStop:
		d.logger.Info("stop command received")
		cancel()
	default:
		d.logger.Warn("unknown command ignored", slog.String("command", cmd.Name))
	}
}

// recordingPath resolves a command payload against the configured
// output directory. An empty payload gets a timestamped name.
func (d *Daemon) recordingPath(payload string) string {
	if payload == "" {
		payload = time.Now().Format("rec-20060102-150405") + ".ts"
	}
	if filepath.IsAbs(payload) {
		return payload
	}
	return filepath.Join(d.cfg.Recording.OutputDir, payload)
}

func (d *Daemon) shutdown() {
	sd.SdNotify(false, sd.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer observability.TimedOperation(shutdownCtx, d.logger, "shutdown")()

	d.reactor.Deregister(d.control)
	d.reactor.Deregister(d.pipe.source)

	// Closing the pipeline closes the broadcasts, which unblocks any
	// streaming handlers waiting for chunks. The servers cannot drain
	// their connections until that happens.
	d.pipe.close()

	if err := d.streamer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("stream server shutdown", slog.String("error", err.Error()))
	}
	if err := d.control.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("control server shutdown", slog.String("error", err.Error()))
	}
}
