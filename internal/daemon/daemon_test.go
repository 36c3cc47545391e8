package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/framewire/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{
			Device: TestDevice,
			Format: "yuyv422",
			Width:  320,
			Height: 240,
			FPS:    30,
		},
		Pipeline: config.PipelineConfig{
			RingCapacity: 100,
			JPEGQuality:  85,
		},
		Stream:    config.StreamConfig{Host: "127.0.0.1", Port: 0},
		Control:   config.ControlConfig{Host: "127.0.0.1", Port: 0},
		Recording: config.RecordingConfig{OutputDir: "/var/lib/framewire"},
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func TestBuildPipeline_TestPattern(t *testing.T) {
	cfg := testConfig()
	h, err := buildPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	defer h.close()

	if h.source == nil {
		t.Error("pipeline has no reactor source")
	}
	if h.mjpegBroadcast == nil {
		t.Error("yuyv pipeline should expose an mjpeg broadcast")
	}
	if h.tsBroadcast != nil {
		t.Error("yuyv pipeline should not expose a ts broadcast")
	}
}

func TestBuildPipeline_UnsupportedGeometry(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Width = 123
	cfg.Capture.Height = 45

	if _, err := buildPipeline(cfg, nil); err == nil {
		t.Fatal("expected error for unsupported geometry")
	}
}

func TestBuildPipeline_UnsupportedFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Format = "nv12"

	if _, err := buildPipeline(cfg, nil); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestBuildPipeline_RecordingRequiresH264(t *testing.T) {
	cfg := testConfig()
	h, err := buildPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	defer h.close()

	if err := h.startRecording("/tmp/out.ts"); !errors.Is(err, errRecordingUnsupported) {
		t.Errorf("startRecording on yuyv pipeline = %v, want errRecordingUnsupported", err)
	}
	if err := h.stopRecording(); err != nil {
		t.Errorf("stopRecording should be a no-op, got %v", err)
	}
}

func TestPipeline_TickProducesChunks(t *testing.T) {
	cfg := testConfig()
	h, err := buildPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	defer h.close()

	if err := h.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Wait for the pattern generator to produce, then tick the chain.
	deadline := time.After(2 * time.Second)
	for h.mjpegBroadcast.Stats().Sequence == 0 {
		select {
		case <-h.source.Ready():
			if err := h.tick(); err != nil {
				t.Fatalf("tick failed: %v", err)
			}
		case <-deadline:
			t.Fatal("no JPEG chunks produced within deadline")
		}
	}
}

func TestBuildPipeline_UnsupportedOutputGeometry(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.OutputWidth = 123
	cfg.Pipeline.OutputHeight = 45

	if _, err := buildPipeline(cfg, nil); err == nil {
		t.Fatal("expected error for unsupported output geometry")
	}
}

func TestPipeline_OverlayAndScale(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Width = 640
	cfg.Capture.Height = 480
	cfg.Pipeline.Overlay = true
	cfg.Pipeline.OutputWidth = 320
	cfg.Pipeline.OutputHeight = 240

	h, err := buildPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	defer h.close()

	if err := h.start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for h.mjpegBroadcast.Stats().Sequence == 0 {
		select {
		case <-h.source.Ready():
			if err := h.tick(); err != nil {
				t.Fatalf("tick failed: %v", err)
			}
		case <-deadline:
			t.Fatal("no JPEG chunks produced within deadline")
		}
	}
}

func TestDaemon_RunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRecordingPath(t *testing.T) {
	cfg := testConfig()
	d := &Daemon{cfg: cfg}

	if got := d.recordingPath("/abs/path.ts"); got != "/abs/path.ts" {
		t.Errorf("absolute payload rewritten: %q", got)
	}
	if got := d.recordingPath("clip.ts"); got != filepath.Join(cfg.Recording.OutputDir, "clip.ts") {
		t.Errorf("relative payload = %q", got)
	}
	if got := d.recordingPath(""); filepath.Dir(got) != cfg.Recording.OutputDir {
		t.Errorf("empty payload should resolve into the output dir, got %q", got)
	}
}
