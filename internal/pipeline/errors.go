package pipeline

import (
	"errors"
	"fmt"
)

// Fatal faults. These are never used for ordinary "not ready yet"
// signalling; edge availability travels as a Status value instead.
var (
	// ErrOutOfBounds indicates pixel coordinates outside the frame geometry.
	ErrOutOfBounds = errors.New("pixel coordinates out of bounds")

	// ErrUnsupportedPixelOp indicates per-pixel access on a format that
	// cannot support it (compressed or not yet implemented). Callers
	// must treat this as a programming fault, not a retryable state.
	ErrUnsupportedPixelOp = errors.New("pixel access not supported by format")

	// ErrFrameReleased indicates use of a frame whose storage has
	// already been returned to the pool.
	ErrFrameReleased = errors.New("frame storage already released")

	// ErrFrameSealed indicates an attempted write to a frame that has
	// already been emitted into a holder. Emitted frames may be read
	// by several consumers at once; transformation stages must produce
	// a new frame instead of editing shared storage.
	ErrFrameSealed = errors.New("frame already emitted and sealed")
)

// BoundsError carries the offending coordinates for diagnostics.
type BoundsError struct {
	X, Y          int
	Width, Height int
}

// Error implements the error interface.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("pixel (%d,%d) out of bounds for %dx%d frame", e.X, e.Y, e.Width, e.Height)
}

// Unwrap makes BoundsError match ErrOutOfBounds.
func (e *BoundsError) Unwrap() error {
	return ErrOutOfBounds
}

func boundsCheck(x, y, w, h int) error {
	if x < 0 || y < 0 || x >= w || y >= h {
		return &BoundsError{X: x, Y: y, Width: w, Height: h}
	}
	return nil
}
