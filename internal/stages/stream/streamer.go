package stream

import (
	"log/slog"

	"github.com/jmylchreest/framewire/internal/pipeline"
	"github.com/jmylchreest/framewire/internal/stages/mux"
)

// TSStreamer is a terminal consumer muxing H.264 frames into MPEG-TS
// chunks on a broadcast buffer. Mux errors are logged and counted but
// never stop the pipeline: the next keyframe usually recovers the
// stream.
type TSStreamer[G pipeline.Geometry] struct {
	logger    *slog.Logger
	broadcast *Broadcast
	ts        *mux.TSWriter
	muxErrors uint64
}

// NewTSStreamer creates a TS streamer with its own broadcast buffer.
func NewTSStreamer[G pipeline.Geometry](logger *slog.Logger, cfg BroadcastConfig) (*TSStreamer[G], error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := NewBroadcast(cfg)
	ts, err := mux.NewTSWriter(b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return &TSStreamer[G]{
		logger:    logger.With(slog.String("stage", "ts-streamer")),
		broadcast: b,
		ts:        ts,
	}, nil
}

// Push implements pipeline.Consumer.
func (s *TSStreamer[G]) Push(fr *pipeline.Frame[pipeline.H264, G]) {
	if err := s.ts.WriteAccessUnit(fr.PTS, fr.DTS, fr.Data()); err != nil {
		s.muxErrors++
		s.logger.Warn("dropping frame, mux write failed",
			slog.Uint64("seq", fr.Seq),
			slog.String("error", err.Error()),
		)
	}
}

// Observe implements pipeline.Consumer. Gaps in the source simply
// produce no chunks.
func (s *TSStreamer[G]) Observe(pipeline.Status) {}

// Broadcast returns the buffer HTTP handlers read from.
func (s *TSStreamer[G]) Broadcast() *Broadcast { return s.broadcast }

// MuxErrors returns the count of frames dropped on mux failure.
func (s *TSStreamer[G]) MuxErrors() uint64 { return s.muxErrors }

// Close shuts down the broadcast buffer.
func (s *TSStreamer[G]) Close() {
	s.broadcast.Close()
}

// MJPEGStreamer is a terminal consumer publishing complete JPEG images
// to a broadcast buffer, one chunk per frame, for multipart delivery.
type MJPEGStreamer[G pipeline.Geometry] struct {
	logger    *slog.Logger
	broadcast *Broadcast
}

// NewMJPEGStreamer creates an MJPEG streamer with its own broadcast
// buffer.
func NewMJPEGStreamer[G pipeline.Geometry](logger *slog.Logger, cfg BroadcastConfig) *MJPEGStreamer[G] {
	if logger == nil {
		logger = slog.Default()
	}
	return &MJPEGStreamer[G]{
		logger:    logger.With(slog.String("stage", "mjpeg-streamer")),
		broadcast: NewBroadcast(cfg),
	}
}

// Push implements pipeline.Consumer.
func (s *MJPEGStreamer[G]) Push(fr *pipeline.Frame[pipeline.MJPEG, G]) {
	if _, err := s.broadcast.Write(fr.Data()); err != nil {
		s.logger.Warn("dropping frame, broadcast closed", slog.Uint64("seq", fr.Seq))
	}
}

// Observe implements pipeline.Consumer.
func (s *MJPEGStreamer[G]) Observe(pipeline.Status) {}

// Broadcast returns the buffer HTTP handlers read from.
func (s *MJPEGStreamer[G]) Broadcast() *Broadcast { return s.broadcast }

// Close shuts down the broadcast buffer.
func (s *MJPEGStreamer[G]) Close() {
	s.broadcast.Close()
}
