package daemon

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/framewire/internal/config"
	"github.com/jmylchreest/framewire/internal/pipeline"
	"github.com/jmylchreest/framewire/internal/reactor"
	"github.com/jmylchreest/framewire/internal/stages/capture"
	"github.com/jmylchreest/framewire/internal/stages/convert"
	"github.com/jmylchreest/framewire/internal/stages/encode"
	"github.com/jmylchreest/framewire/internal/stages/mux"
	"github.com/jmylchreest/framewire/internal/stages/stream"
)

// TestDevice selects the synthetic test pattern instead of a V4L2
// device.
const TestDevice = "test"

var errRecordingUnsupported = fmt.Errorf("recording requires h264 capture format")

// pipelineHandle is the type-erased view of a constructed pipeline.
// Stage types are fixed at compile time per format and geometry; the
// driving loop only needs these operations.
type pipelineHandle struct {
	source         reactor.Source
	start          func() error
	tick           func() error
	startRecording func(path string) error
	stopRecording  func() error
	close          func()

	tsBroadcast    *stream.Broadcast
	mjpegBroadcast *stream.Broadcast
}

// buildPipeline dispatches the runtime geometry onto the statically
// typed constructors. Every supported dimension needs its own case:
// the type argument must be known at compile time.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	switch [2]int{cfg.Capture.Width, cfg.Capture.Height} {
	case [2]int{320, 240}:
		return buildForGeometry[pipeline.Dim320x240](cfg, logger)
	case [2]int{640, 480}:
		return buildForGeometry[pipeline.Dim640x480](cfg, logger)
	case [2]int{480, 640}:
		return buildForGeometry[pipeline.Dim480x640](cfg, logger)
	case [2]int{1280, 720}:
		return buildForGeometry[pipeline.Dim1280x720](cfg, logger)
	case [2]int{1920, 1080}:
		return buildForGeometry[pipeline.Dim1920x1080](cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported capture geometry %dx%d",
			cfg.Capture.Width, cfg.Capture.Height)
	}
}

func buildForGeometry[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	switch cfg.Capture.Format {
	case "yuyv422":
		return buildYUYV[G](cfg, logger)
	case "mjpeg":
		return buildMJPEG[G](cfg, logger)
	case "h264":
		return buildH264[G](cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported capture format %q", cfg.Capture.Format)
	}
}

// overlayColor is the rectangle outline drawn when pipeline.overlay is
// set: green in BT.601 YCbCr.
var overlayColor = pipeline.Pixel{Y: 149, Cb: 43, Cr: 21}

// yuyvSource abstracts the raw capture head of a pipeline over the
// real device and the synthetic test pattern.
type yuyvSource[G pipeline.Geometry] struct {
	producer pipeline.Producer[pipeline.YUYV422, G]
	source   reactor.Source
	start    func() error
	close    func()
}

func newYUYVSource[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) yuyvSource[G] {
	if cfg.Capture.Device == TestDevice {
		pat := capture.NewTestPattern[G](logger)
		return yuyvSource[G]{
			producer: pat,
			source:   pat,
			start: func() error {
				pat.Start(cfg.Capture.FPS)
				return nil
			},
			close: pat.Close,
		}
	}
	dev := capture.NewDevice[pipeline.YUYV422, G](cfg.Capture.Device, cfg.Capture.FPS, logger)
	return yuyvSource[G]{
		producer: dev,
		source:   dev,
		start: func() error {
			if err := dev.Open(); err != nil {
				return err
			}
			return dev.Start()
		},
		close: func() { dev.Close() },
	}
}

// buildYUYV wires raw packed capture through software processing and
// JPEG encoding into the MJPEG streamer. When an output geometry is
// configured it dispatches onto the scaled variant, which needs the
// target dimension as a compile-time type argument.
func buildYUYV[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	out := [2]int{cfg.Pipeline.OutputWidth, cfg.Pipeline.OutputHeight}
	if out[0] == 0 || out == [2]int{cfg.Capture.Width, cfg.Capture.Height} {
		return buildYUYVDirect[G](cfg, logger)
	}
	switch out {
	case [2]int{320, 240}:
		return buildYUYVScaled[G, pipeline.Dim320x240](cfg, logger)
	case [2]int{640, 480}:
		return buildYUYVScaled[G, pipeline.Dim640x480](cfg, logger)
	case [2]int{480, 640}:
		return buildYUYVScaled[G, pipeline.Dim480x640](cfg, logger)
	case [2]int{1280, 720}:
		return buildYUYVScaled[G, pipeline.Dim1280x720](cfg, logger)
	case [2]int{1920, 1080}:
		return buildYUYVScaled[G, pipeline.Dim1920x1080](cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported output geometry %dx%d", out[0], out[1])
	}
}

func buildYUYVDirect[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	src := newYUYVSource[G](cfg, logger)
	conv := convert.YUYVToYUV420P[G](logger)
	enc := encode.MJPEGEncoder[G](logger, cfg.Pipeline.JPEGQuality)
	streamer := stream.NewMJPEGStreamer[G](logger, stream.BroadcastConfigFromStream(cfg.Stream))

	var head pipeline.Producer[pipeline.YUYV422, G] = src.producer
	var ovl *pipeline.FuncStage[pipeline.YUYV422, G, pipeline.YUYV422, G]
	if cfg.Pipeline.Overlay {
		ovl = convert.Overlay[pipeline.YUYV422, G](logger, overlayColor)
		head = ovl
	}

	return &pipelineHandle{
		source:         src.source,
		mjpegBroadcast: streamer.Broadcast(),
		start:          src.start,
		tick: func() error {
			if ovl != nil {
				pipeline.Pull[pipeline.YUYV422, G](src.producer, ovl)
			}
			pipeline.Pull[pipeline.YUYV422, G](head, conv)
			pipeline.Pull[pipeline.YUV420P, G](conv, enc)
			pipeline.Pull[pipeline.MJPEG, G](enc, streamer)
			if ovl != nil {
				if err := ovl.Err(); err != nil {
					return err
				}
			}
			if err := conv.Err(); err != nil {
				return err
			}
			return enc.Err()
		},
		startRecording: func(string) error { return errRecordingUnsupported },
		stopRecording:  func() error { return nil },
		close: func() {
			src.close()
			if ovl != nil {
				ovl.Close()
			}
			closeStages(conv, enc)
			streamer.Close()
		},
	}, nil
}

// buildYUYVScaled inserts a resampling stage between conversion and
// encoding, taking frames from capture geometry GI to output GO.
func buildYUYVScaled[GI, GO pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	src := newYUYVSource[GI](cfg, logger)
	conv := convert.YUYVToYUV420P[GI](logger)
	scale := convert.Scale[GI, GO](logger)
	enc := encode.MJPEGEncoder[GO](logger, cfg.Pipeline.JPEGQuality)
	streamer := stream.NewMJPEGStreamer[GO](logger, stream.BroadcastConfigFromStream(cfg.Stream))

	var head pipeline.Producer[pipeline.YUYV422, GI] = src.producer
	var ovl *pipeline.FuncStage[pipeline.YUYV422, GI, pipeline.YUYV422, GI]
	if cfg.Pipeline.Overlay {
		ovl = convert.Overlay[pipeline.YUYV422, GI](logger, overlayColor)
		head = ovl
	}

	return &pipelineHandle{
		source:         src.source,
		mjpegBroadcast: streamer.Broadcast(),
		start:          src.start,
		tick: func() error {
			if ovl != nil {
				pipeline.Pull[pipeline.YUYV422, GI](src.producer, ovl)
			}
			pipeline.Pull[pipeline.YUYV422, GI](head, conv)
			pipeline.Pull[pipeline.YUV420P, GI](conv, scale)
			pipeline.Pull[pipeline.YUV420P, GO](scale, enc)
			pipeline.Pull[pipeline.MJPEG, GO](enc, streamer)
			if ovl != nil {
				if err := ovl.Err(); err != nil {
					return err
				}
			}
			for _, err := range []error{conv.Err(), scale.Err(), enc.Err()} {
				if err != nil {
					return err
				}
			}
			return nil
		},
		startRecording: func(string) error { return errRecordingUnsupported },
		stopRecording:  func() error { return nil },
		close: func() {
			src.close()
			if ovl != nil {
				ovl.Close()
			}
			closeStages(conv, scale, enc)
			streamer.Close()
		},
	}, nil
}

// buildMJPEG streams hardware JPEG frames directly.
func buildMJPEG[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	dev := capture.NewDevice[pipeline.MJPEG, G](cfg.Capture.Device, cfg.Capture.FPS, logger)
	streamer := stream.NewMJPEGStreamer[G](logger, stream.BroadcastConfigFromStream(cfg.Stream))

	return &pipelineHandle{
		source:         dev,
		mjpegBroadcast: streamer.Broadcast(),
		start: func() error {
			if err := dev.Open(); err != nil {
				return err
			}
			return dev.Start()
		},
		tick: func() error {
			pipeline.Pull[pipeline.MJPEG, G](dev, streamer)
			return nil
		},
		startRecording: func(string) error { return errRecordingUnsupported },
		stopRecording:  func() error { return nil },
		close: func() {
			dev.Close()
			streamer.Close()
		},
	}, nil
}

// buildH264 fans hardware-encoded video out to the recorder and the
// TS streamer.
func buildH264[G pipeline.Geometry](cfg *config.Config, logger *slog.Logger) (*pipelineHandle, error) {
	dev := capture.NewDevice[pipeline.H264, G](cfg.Capture.Device, cfg.Capture.FPS, logger)
	pass := encode.H264Passthrough[G](logger)
	ring := pipeline.NewRingHolder[pipeline.H264, G](cfg.Pipeline.RingCapacity)
	recorder := mux.NewRecorder[G](logger)
	streamer, err := stream.NewTSStreamer[G](logger, stream.BroadcastConfigFromStream(cfg.Stream))
	if err != nil {
		return nil, err
	}
	sinks := pipeline.Tee[pipeline.H264, G](recorder, streamer)

	return &pipelineHandle{
		source:      dev,
		tsBroadcast: streamer.Broadcast(),
		start: func() error {
			if err := dev.Open(); err != nil {
				return err
			}
			return dev.Start()
		},
		tick: func() error {
			pipeline.Pull[pipeline.H264, G](dev, pass)
			pipeline.Pull[pipeline.H264, G](pass, ring)
			// Drain everything buffered: the ring absorbs bursts when
			// an iteration was delayed by command handling.
			for pipeline.Pull[pipeline.H264, G](ring, sinks) == pipeline.StatusReady {
			}
			return pass.Err()
		},
		startRecording: recorder.StartRecording,
		stopRecording:  recorder.StopRecording,
		close: func() {
			dev.Close()
			pass.Close()
			ring.Close()
			recorder.Close()
			streamer.Close()
		},
	}, nil
}

type closer interface{ Close() }

func closeStages(cs ...closer) {
	for _, c := range cs {
		c.Close()
	}
}
