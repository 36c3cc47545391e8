package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// TestPattern is a synthetic YUYV422 producer that renders moving
// vertical bars. It stands in for real hardware in tests and when the
// configured device is "test", and follows the same inbox/readiness
// contract as Device.
type TestPattern[G pipeline.Geometry] struct {
	logger *slog.Logger

	ready chan struct{}
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending bool
	state   pipeline.DeviceState
	fps     int
	seq     uint64
	last    *pipeline.Frame[pipeline.YUYV422, G]
}

// NewTestPattern creates a stopped test pattern source.
func NewTestPattern[G pipeline.Geometry](logger *slog.Logger) *TestPattern[G] {
	if logger == nil {
		logger = slog.Default()
	}
	return &TestPattern[G]{
		logger: logger.With(slog.String("component", "capture"), slog.String("device", "test")),
		ready:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		state:  pipeline.DeviceConfigured,
		fps:    30,
	}
}

// Name implements reactor.Source.
func (t *TestPattern[G]) Name() string {
	return "capture:test"
}

// Ready implements reactor.Source.
func (t *TestPattern[G]) Ready() <-chan struct{} {
	return t.ready
}

// State returns the device lifecycle state.
func (t *TestPattern[G]) State() pipeline.DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start begins producing frames at the given rate.
func (t *TestPattern[G]) Start(fps int) {
	if fps <= 0 {
		fps = 30
	}
	t.mu.Lock()
	t.state = pipeline.DeviceCanProduce
	t.fps = fps
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.Produce()
			}
		}
	}()
}

// Produce marks one new frame pending and signals readiness. Exposed
// so tests can drive the cadence directly without the ticker.
func (t *TestPattern[G]) Produce() {
	t.mu.Lock()
	t.pending = true
	t.mu.Unlock()
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// Disconnect simulates losing the underlying source mid-run.
func (t *TestPattern[G]) Disconnect() {
	t.mu.Lock()
	t.state = pipeline.DeviceDisconnected
	t.pending = false
	t.mu.Unlock()
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// Get implements pipeline.Producer with the same contract as Device:
// each produced frame is observable exactly once.
func (t *TestPattern[G]) Get() (*pipeline.Frame[pipeline.YUYV422, G], pipeline.Status) {
	t.mu.Lock()
	if t.state == pipeline.DeviceDisconnected {
		t.mu.Unlock()
		return nil, pipeline.StatusNoData
	}
	if !t.pending {
		t.mu.Unlock()
		return nil, pipeline.StatusNotReady
	}
	t.pending = false
	t.seq++
	seq := t.seq
	fps := t.fps
	t.mu.Unlock()

	fr := pipeline.NewFrame[pipeline.YUYV422, G]()
	renderBars(fr.Data(), fr.Width(), fr.Height(), seq)
	fr.Seq = seq
	fr.PTS = int64(seq) * 90000 / int64(fps)
	fr.Keyframe = true

	if t.last != nil {
		t.last.Release()
	}
	t.last = fr
	return fr, pipeline.StatusReady
}

// Close stops the producer goroutine.
func (t *TestPattern[G]) Close() {
	t.mu.Lock()
	running := t.state == pipeline.DeviceCanProduce
	t.state = pipeline.DeviceDisconnected
	t.mu.Unlock()

	close(t.stop)
	if running {
		<-t.done
	}
	if t.last != nil {
		t.last.Release()
		t.last = nil
	}
}

// renderBars fills a YUYV buffer with eight grey bars scrolling one
// column per frame.
func renderBars(data []byte, w, h int, seq uint64) {
	barWidth := w / 8
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bar := ((x + int(seq)) / barWidth) % 8
			luma := uint8(255 - bar*32)
			i := (y*w + x) * 2
			data[i] = luma
			data[i+1] = 128
		}
	}
}
