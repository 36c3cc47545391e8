// Package capture adapts V4L2 cameras into pipeline producers. The
// blocking device wait runs on a pump goroutine that bridges frames
// into a single-slot inbox and signals the reactor; the pipeline side
// never blocks.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/jmylchreest/framewire/internal/pipeline"
)

// V4L2 fourcc codes for the formats framewire understands.
const (
	fourccYUYV webcam.PixelFormat = 0x56595559 // 'YUYV'
	fourccMJPG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	fourccH264 webcam.PixelFormat = 0x34363248 // 'H264'
)

// fourccFor maps a pipeline format name to its V4L2 fourcc.
func fourccFor(name string) (webcam.PixelFormat, bool) {
	switch name {
	case "yuyv422":
		return fourccYUYV, true
	case "mjpeg":
		return fourccMJPG, true
	case "h264":
		return fourccH264, true
	default:
		return 0, false
	}
}

// Device is a V4L2 capture device typed by its configured format and
// geometry. It implements pipeline.Producer and reactor.Source.
//
// Lifecycle: Initializing → Configured (Open) → CanProduce (Start).
// A read failure at any point transitions to Disconnected; Get then
// reports NoData and never fails.
type Device[F pipeline.Format, G pipeline.Geometry] struct {
	path   string
	fps    int
	logger *slog.Logger

	cam   *webcam.Webcam
	state atomic.Int32

	ready chan struct{}
	stop  chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	inbox []byte
	seq   uint64
	last  *pipeline.Frame[F, G]
	epoch time.Time
}

// NewDevice creates an unopened capture device for path.
func NewDevice[F pipeline.Format, G pipeline.Geometry](path string, fps int, logger *slog.Logger) *Device[F, G] {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device[F, G]{
		path:   path,
		fps:    fps,
		logger: logger.With(slog.String("component", "capture"), slog.String("device", path)),
		ready:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	d.state.Store(int32(pipeline.DeviceInitializing))
	return d
}

// Name implements reactor.Source.
func (d *Device[F, G]) Name() string {
	return "capture:" + d.path
}

// Ready implements reactor.Source.
func (d *Device[F, G]) Ready() <-chan struct{} {
	return d.ready
}

// State returns the current device lifecycle state.
func (d *Device[F, G]) State() pipeline.DeviceState {
	return pipeline.DeviceState(d.state.Load())
}

func (d *Device[F, G]) setState(s pipeline.DeviceState) {
	d.state.Store(int32(s))
}

// Open opens and configures the device for the compile-time format and
// geometry. The driver must accept the exact requested parameters:
// silently switching resolution would break the typed pipeline.
func (d *Device[F, G]) Open() error {
	var f F
	var g G
	w, h := g.Dims()

	cam, err := webcam.Open(d.path)
	if err != nil {
		d.setState(pipeline.DeviceOpenError)
		return errors.Wrap(err, "opening capture device")
	}
	d.cam = cam

	fourcc, ok := fourccFor(f.Name())
	if !ok {
		d.setState(pipeline.DeviceConfigureError)
		return errors.Errorf("no V4L2 fourcc for format %q", f.Name())
	}

	gotF, gotW, gotH, err := cam.SetImageFormat(fourcc, uint32(w), uint32(h))
	if err != nil {
		d.setState(pipeline.DeviceConfigureError)
		return errors.Wrap(err, "configuring capture format")
	}
	if gotF != fourcc || gotW != uint32(w) || gotH != uint32(h) {
		d.setState(pipeline.DeviceConfigureError)
		return errors.Errorf("device negotiated %dx%d fourcc %x, need %dx%d %x",
			gotW, gotH, gotF, w, h, fourcc)
	}
	if d.fps > 0 {
		if err := cam.SetFramerate(float32(d.fps)); err != nil {
			d.logger.Warn("device rejected framerate, using driver default",
				slog.Int("fps", d.fps),
				slog.String("error", err.Error()),
			)
		}
	}

	d.setState(pipeline.DeviceConfigured)
	d.logger.Info("capture device configured",
		slog.String("format", f.Name()),
		slog.Int("width", w),
		slog.Int("height", h),
	)
	return nil
}

// Start begins streaming and launches the pump goroutine. The device
// reports CanProduce from here until disconnect or Close.
func (d *Device[F, G]) Start() error {
	if err := d.cam.StartStreaming(); err != nil {
		d.setState(pipeline.DeviceConfigureError)
		return errors.Wrap(err, "starting capture stream")
	}
	d.setState(pipeline.DeviceCanProduce)
	d.epoch = time.Now()
	go d.pump()
	return nil
}

// pump blocks on the device wait and forwards frames to the inbox,
// newest wins. Runs until Close or a device failure.
func (d *Device[F, G]) pump() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		err := d.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			d.disconnect(err)
			return
		}

		data, err := d.cam.ReadFrame()
		if err != nil {
			d.disconnect(err)
			return
		}
		if len(data) == 0 {
			continue
		}

		// The driver reuses the mmap buffer after the next read, so
		// the frame is copied out before it is handed over.
		buf := make([]byte, len(data))
		copy(buf, data)

		d.mu.Lock()
		d.inbox = buf
		d.mu.Unlock()
		d.signal()
	}
}

func (d *Device[F, G]) disconnect(err error) {
	d.setState(pipeline.DeviceDisconnected)
	d.logger.Warn("capture device disconnected", slog.String("error", err.Error()))
	// Wake the driving loop so it observes the state change.
	d.signal()
}

func (d *Device[F, G]) signal() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Get implements pipeline.Producer. Each captured frame is returned
// exactly once; between frames the status is NotReady. A disconnected
// device reports NoData, never an error.
func (d *Device[F, G]) Get() (*pipeline.Frame[F, G], pipeline.Status) {
	if d.State() == pipeline.DeviceDisconnected {
		return nil, pipeline.StatusNoData
	}

	d.mu.Lock()
	data := d.inbox
	d.inbox = nil
	d.mu.Unlock()

	if data == nil {
		return nil, pipeline.StatusNotReady
	}

	var f F
	d.seq++
	var fr *pipeline.Frame[F, G]
	if f.Compressed() {
		fr = pipeline.NewBitstreamFrame[F, G](data)
	} else {
		fr = pipeline.NewFrame[F, G]()
		copy(fr.Data(), data)
	}
	fr.Seq = d.seq
	// 90 kHz presentation clock counted from stream start.
	fr.PTS = time.Since(d.epoch).Milliseconds() * 90

	// The device's own reference to the previous frame is dropped once
	// a newer one exists; downstream holders keep theirs.
	if d.last != nil {
		d.last.Release()
	}
	d.last = fr
	return fr, pipeline.StatusReady
}

// Close stops the pump and releases the device.
func (d *Device[F, G]) Close() error {
	close(d.stop)
	if d.State() == pipeline.DeviceCanProduce {
		<-d.done
	}
	if d.last != nil {
		d.last.Release()
		d.last = nil
	}
	if d.cam != nil {
		if err := d.cam.Close(); err != nil {
			d.setState(pipeline.DeviceCloseError)
			return errors.Wrap(err, "closing capture device")
		}
	}
	return nil
}
