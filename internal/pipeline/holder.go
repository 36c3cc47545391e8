package pipeline

// DefaultRingCapacity is the default bound for ring-buffered holders.
const DefaultRingCapacity = 100

// Holder mediates exactly one producer→consumer edge with a single
// "current" frame slot and the edge status machine:
//
//	NoData → Buffering → Ready → (Buffering | NoData)
//
// Holders are driven from the single pipeline goroutine; they are not
// safe for concurrent use and never block.
type Holder[F Format, G Geometry] struct {
	frame  *Frame[F, G]
	status Status
	read   bool
}

// NewHolder creates an empty holder reporting StatusNoData.
func NewHolder[F Format, G Geometry]() *Holder[F, G] {
	return &Holder[F, G]{status: StatusNoData}
}

// Push stores a frame and marks the edge Ready. It always succeeds and
// never blocks; an unread previous frame is overwritten last-write-wins
// and its reference dropped.
func (h *Holder[F, G]) Push(fr *Frame[F, G]) {
	fr.Retain()
	fr.seal()
	if h.frame != nil {
		h.frame.Release()
	}
	h.frame = fr
	h.status = StatusReady
	h.read = false
}

// Get returns the current frame when the edge is Ready, otherwise
// (nil, status). Repeated calls while Ready return the same frame
// reference: reading does not consume, so several downstream consumers
// may pull the same frame in one iteration without duplicating work.
// Reading does arm the edge: once a frame has been read at least once,
// the next upstream non-ready propagation retires it.
func (h *Holder[F, G]) Get() (*Frame[F, G], Status) {
	if h.status != StatusReady {
		return nil, h.status
	}
	h.read = true
	return h.frame, StatusReady
}

// Status observes the edge state without side effects.
func (h *Holder[F, G]) Status() Status {
	return h.status
}

// Observe propagates an upstream non-ready status onto this edge.
// An unread Ready frame is kept: downstream may legitimately process
// the same unread frame on a later iteration while upstream refills.
// A frame that was already consumed transitions the edge back to the
// propagated status (Buffering or NoData) and is dropped.
func (h *Holder[F, G]) Observe(st Status) {
	if h.status == StatusReady {
		if !h.read {
			return
		}
		if h.frame != nil {
			h.frame.Release()
			h.frame = nil
		}
	}
	h.status = st
}

// Reset drops the current frame and returns the edge to NoData. Used
// when the producing device disconnects: subsequent Gets report NoData
// rather than failing.
func (h *Holder[F, G]) Reset() {
	if h.frame != nil {
		h.frame.Release()
		h.frame = nil
	}
	h.status = StatusNoData
}

// Close releases the holder at pipeline teardown.
func (h *Holder[F, G]) Close() {
	h.Reset()
}

// RingHolder buffers up to capacity frames between a bursty producer
// and a slower consumer. When full, a push drops the oldest unread
// frame and counts an overflow; overflows are observable, not fatal.
type RingHolder[F Format, G Geometry] struct {
	ring     []*Frame[F, G]
	capacity int
	current  *Frame[F, G]
	status   Status
	overflow uint64
}

// NewRingHolder creates a ring holder. A capacity of zero or less uses
// DefaultRingCapacity.
func NewRingHolder[F Format, G Geometry](capacity int) *RingHolder[F, G] {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingHolder[F, G]{
		ring:     make([]*Frame[F, G], 0, capacity),
		capacity: capacity,
		status:   StatusNoData,
	}
}

// Push appends a frame to the ring, dropping the oldest unread frame
// on overflow. Never blocks.
func (h *RingHolder[F, G]) Push(fr *Frame[F, G]) {
	fr.Retain()
	fr.seal()
	if len(h.ring) == h.capacity {
		oldest := h.ring[0]
		copy(h.ring, h.ring[1:])
		h.ring = h.ring[:len(h.ring)-1]
		oldest.Release()
		h.overflow++
	}
	h.ring = append(h.ring, fr)
	h.status = StatusReady
}

// Get removes and returns the oldest buffered frame. The returned
// reference stays valid until the next Get or Close. When the ring is
// empty the current edge status is returned instead.
func (h *RingHolder[F, G]) Get() (*Frame[F, G], Status) {
	if len(h.ring) == 0 {
		if h.status == StatusReady {
			h.status = StatusBuffering
		}
		return nil, h.status
	}
	if h.current != nil {
		h.current.Release()
	}
	h.current = h.ring[0]
	copy(h.ring, h.ring[1:])
	h.ring = h.ring[:len(h.ring)-1]
	return h.current, StatusReady
}

// Status observes the edge state without side effects.
func (h *RingHolder[F, G]) Status() Status {
	if len(h.ring) > 0 {
		return StatusReady
	}
	return h.status
}

// Observe propagates an upstream non-ready status onto this edge while
// the ring is empty.
func (h *RingHolder[F, G]) Observe(st Status) {
	if len(h.ring) == 0 && h.status != StatusReady {
		h.status = st
	}
}

// Len returns the number of buffered unread frames.
func (h *RingHolder[F, G]) Len() int {
	return len(h.ring)
}

// Capacity returns the configured ring bound.
func (h *RingHolder[F, G]) Capacity() int {
	return h.capacity
}

// Overflows returns the number of frames dropped unread.
func (h *RingHolder[F, G]) Overflows() uint64 {
	return h.overflow
}

// Reset drops all buffered frames and returns the edge to NoData.
func (h *RingHolder[F, G]) Reset() {
	for _, fr := range h.ring {
		fr.Release()
	}
	h.ring = h.ring[:0]
	if h.current != nil {
		h.current.Release()
		h.current = nil
	}
	h.status = StatusNoData
}

// Close releases the holder at pipeline teardown.
func (h *RingHolder[F, G]) Close() {
	h.Reset()
}
