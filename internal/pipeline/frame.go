package pipeline

import (
	"sync"
	"sync/atomic"
)

// bufPools recycles frame backing buffers per size class. Raw video at
// VGA and up is large enough that per-frame allocation shows up in GC
// pause times, so storage is pooled and returned on last release.
var bufPools sync.Map // int -> *sync.Pool

func getBuf(size int) []byte {
	if size <= 0 {
		return nil
	}
	p, _ := bufPools.LoadOrStore(size, &sync.Pool{
		New: func() any { return make([]byte, size) },
	})
	buf := p.(*sync.Pool).Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func putBuf(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	if p, ok := bufPools.Load(cap(buf)); ok {
		p.(*sync.Pool).Put(buf[:cap(buf)])
	}
}

// store is the reference-counted backing storage shared by every
// holder that currently references a frame. The last release returns
// pooled buffers for reuse.
type store struct {
	refs   atomic.Int32
	pooled bool
	data   []byte
}

func (s *store) retain() {
	s.refs.Add(1)
}

func (s *store) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	if s.pooled {
		putBuf(s.data)
	}
	s.data = nil
}

// Frame is a fixed-geometry buffer of pixel or bitstream data, tagged
// at compile time with its format F and geometry G. Two frames are
// pipe-compatible iff their (F, G) type arguments are identical.
//
// Ownership: the creator holds one reference. Pushing into a Holder
// retains another; Get borrows without retaining. A frame pushed into
// a holder is sealed and must not be written again.
type Frame[F Format, G Geometry] struct {
	st     *store
	sealed atomic.Bool

	// PTS and DTS are presentation/decode timestamps in 90 kHz units.
	PTS int64
	DTS int64

	// Keyframe marks an independently decodable frame.
	Keyframe bool

	// Seq is the producer-assigned sequence number.
	Seq uint64
}

// NewFrame allocates a writable frame with pooled storage sized by the
// format and geometry. Compressed formats have no fixed size; use
// NewBitstreamFrame for those.
func NewFrame[F Format, G Geometry]() *Frame[F, G] {
	var f F
	var g G
	w, h := g.Dims()
	st := &store{pooled: true, data: getBuf(f.FrameBytes(w, h))}
	st.refs.Store(1)
	return &Frame[F, G]{st: st}
}

// NewBitstreamFrame wraps already-encoded data in a frame. The frame
// takes ownership of data; the caller must not modify it afterwards.
func NewBitstreamFrame[F Format, G Geometry](data []byte) *Frame[F, G] {
	st := &store{data: data}
	st.refs.Store(1)
	return &Frame[F, G]{st: st}
}

// Width returns the compile-time width of the frame's geometry.
func (fr *Frame[F, G]) Width() int {
	var g G
	w, _ := g.Dims()
	return w
}

// Height returns the compile-time height of the frame's geometry.
func (fr *Frame[F, G]) Height() int {
	var g G
	_, h := g.Dims()
	return h
}

// FormatName returns the name of the frame's compile-time format.
func (fr *Frame[F, G]) FormatName() string {
	var f F
	return f.Name()
}

// Data returns the backing buffer, or nil after the last release.
func (fr *Frame[F, G]) Data() []byte {
	return fr.st.data
}

// Retain adds a reference to the frame's backing storage.
func (fr *Frame[F, G]) Retain() {
	fr.st.retain()
}

// Release drops a reference. When the last holder referencing the
// storage drops it, pooled buffers are recycled.
func (fr *Frame[F, G]) Release() {
	fr.st.release()
}

// Refs returns the current reference count. Intended for tests and
// stats, not for synchronization decisions.
func (fr *Frame[F, G]) Refs() int {
	return int(fr.st.refs.Load())
}

// seal marks the frame immutable. Called by holders on Push.
func (fr *Frame[F, G]) seal() {
	fr.sealed.Store(true)
}

// PixelAt reads the pixel at (x, y) with bounds checking.
func (fr *Frame[F, G]) PixelAt(x, y int) (Pixel, error) {
	if fr.st.data == nil {
		return Pixel{}, ErrFrameReleased
	}
	var f F
	var g G
	w, h := g.Dims()
	return f.PixelAt(fr.st.data, w, h, x, y)
}

// SetPixelAt writes the pixel at (x, y) with bounds checking. Writing
// to a frame that has already been emitted is a fault: shared frames
// may be read concurrently by several downstream consumers.
func (fr *Frame[F, G]) SetPixelAt(x, y int, p Pixel) error {
	if fr.st.data == nil {
		return ErrFrameReleased
	}
	if fr.sealed.Load() {
		return ErrFrameSealed
	}
	var f F
	var g G
	w, h := g.Dims()
	return f.SetPixelAt(fr.st.data, w, h, x, y, p)
}

// Clone produces a writable copy of the frame with fresh storage,
// carrying over timestamps and sequence. Transformation stages that
// edit pixels clone first; the original stays untouched for its other
// readers.
func (fr *Frame[F, G]) Clone() *Frame[F, G] {
	st := &store{pooled: true, data: getBuf(len(fr.st.data))}
	if st.data == nil && len(fr.st.data) > 0 {
		st.data = make([]byte, len(fr.st.data))
	}
	st.refs.Store(1)
	copy(st.data, fr.st.data)
	return &Frame[F, G]{
		st:       st,
		PTS:      fr.PTS,
		DTS:      fr.DTS,
		Keyframe: fr.Keyframe,
		Seq:      fr.Seq,
	}
}
