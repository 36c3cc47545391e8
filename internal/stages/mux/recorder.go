package mux

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// Recorder is a terminal consumer writing H.264 frames into an MPEG-TS
// file. Recording starts and stops between loop iterations via
// StartRecording/StopRecording; while no file is open, frames are
// discarded. A write error stops the recording and is retained for
// the driving loop; it never faults the rest of the pipeline.
type Recorder[G pipeline.Geometry] struct {
	logger *slog.Logger

	mu     sync.Mutex
	file   *os.File
	ts     *TSWriter
	path   string
	frames uint64
	err    error
}

// NewRecorder creates an idle recorder.
func NewRecorder[G pipeline.Geometry](logger *slog.Logger) *Recorder[G] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder[G]{
		logger: logger.With(slog.String("stage", "recorder")),
	}
}

// StartRecording opens path and begins muxing into it. An active
// recording is closed first.
func (r *Recorder[G]) StartRecording(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.stopLocked(); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening recording file: %w", err)
	}
	ts, err := NewTSWriter(f)
	if err != nil {
		f.Close()
		return err
	}

	r.file = f
	r.ts = ts
	r.path = path
	r.frames = 0
	r.err = nil
	r.logger.Info("recording started", slog.String("path", path))
	return nil
}

// StopRecording closes the active recording file, if any.
func (r *Recorder[G]) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recorder[G]) stopLocked() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.logger.Info("recording stopped",
		slog.String("path", r.path),
		slog.Uint64("frames", r.frames),
	)
	r.file = nil
	r.ts = nil
	r.path = ""
	if err != nil {
		return fmt.Errorf("closing recording file: %w", err)
	}
	return nil
}

// Recording reports whether a file is currently open.
func (r *Recorder[G]) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// Frames returns the number of frames muxed into the current file.
func (r *Recorder[G]) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Err returns the write error that stopped the last recording, or nil.
func (r *Recorder[G]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Push implements pipeline.Consumer. Frames arriving while idle are
// dropped.
func (r *Recorder[G]) Push(fr *pipeline.Frame[pipeline.H264, G]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ts == nil {
		return
	}
	if err := r.ts.WriteAccessUnit(fr.PTS, fr.DTS, fr.Data()); err != nil {
		r.logger.Error("mux write failed, stopping recording",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		r.err = err
		_ = r.stopLocked()
		return
	}
	r.frames++
}

// Observe implements pipeline.Consumer. The recorder simply waits out
// upstream gaps.
func (r *Recorder[G]) Observe(pipeline.Status) {}

// Close stops any active recording.
func (r *Recorder[G]) Close() error {
	return r.StopRecording()
}
