// Package pipeline provides the core plumbing for reactor-driven media
// pipelines: typed frames, the holder/status state machine between
// stages, and the statically checked pull operator that connects them.
package pipeline

// Status describes data availability on a producer→consumer edge.
// It is deliberately separate from DeviceState: "no frame yet" and
// "device gone" are different facts and share no values.
type Status int

const (
	// StatusNoData means nothing has ever been produced on this edge.
	StatusNoData Status = iota

	// StatusBuffering means the producer has accepted input but does
	// not yet hold a complete frame (codec lookahead, partial decode).
	StatusBuffering

	// StatusReady means a complete frame is available for reading.
	StatusReady

	// StatusNotReady means the producer exists but skipped this
	// iteration (readiness fired without a usable frame).
	StatusNotReady
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNoData:
		return "no_data"
	case StatusBuffering:
		return "buffering"
	case StatusReady:
		return "ready"
	case StatusNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// DeviceState describes the lifecycle of a capture device or session.
type DeviceState int

const (
	// DeviceInitializing is the state before the first successful configure.
	DeviceInitializing DeviceState = iota

	// DeviceConfigured means parameters were accepted by the device.
	DeviceConfigured

	// DeviceCanProduce means frames may be pulled.
	DeviceCanProduce

	// DeviceDisconnected means the underlying source was lost. The
	// transition CanProduce→Disconnected is reachable at any time.
	DeviceDisconnected

	// DeviceOpenError means opening the device failed.
	DeviceOpenError

	// DeviceConfigureError means configuring the device failed.
	DeviceConfigureError

	// DeviceCloseError means closing the device failed.
	DeviceCloseError
)

// String returns the device state name.
func (d DeviceState) String() string {
	switch d {
	case DeviceInitializing:
		return "initializing"
	case DeviceConfigured:
		return "configured"
	case DeviceCanProduce:
		return "can_produce"
	case DeviceDisconnected:
		return "disconnected"
	case DeviceOpenError:
		return "open_error"
	case DeviceConfigureError:
		return "configure_error"
	case DeviceCloseError:
		return "close_error"
	default:
		return "unknown"
	}
}

// Failed reports whether the state is one of the error states.
func (d DeviceState) Failed() bool {
	switch d {
	case DeviceOpenError, DeviceConfigureError, DeviceCloseError:
		return true
	default:
		return false
	}
}
