package pipeline

import "log/slog"

// Producer is the pull side of a pipe edge. Get never blocks: it
// either returns a complete frame or the current edge status.
type Producer[F Format, G Geometry] interface {
	Get() (*Frame[F, G], Status)
}

// Consumer is the push side of a pipe edge. Push never blocks; Observe
// records an upstream non-ready status for this iteration.
type Consumer[F Format, G Geometry] interface {
	Push(*Frame[F, G])
	Observe(Status)
}

// Transform is a compute stage: a consumer of (FI, GI) frames and a
// producer of (FO, GO) frames. A transform emits zero or one output
// frame per input and reports Buffering while its internal state is
// insufficient to emit.
type Transform[FI Format, GI Geometry, FO Format, GO Geometry] interface {
	Consumer[FI, GI]
	Producer[FO, GO]
}

// Pull moves one frame from producer to consumer. The connection is
// checked by the compiler: both sides must agree on the exact format
// and geometry type arguments, so mismatched stages are rejected at
// build time, never at run time.
//
// On a non-ready producer the status is propagated to the consumer's
// edge and nothing else happens this iteration. The caller chains
// Pulls in fixed topological order; a non-ready result short-circuits
// the remainder of the chain for the current iteration only.
func Pull[F Format, G Geometry](from Producer[F, G], to Consumer[F, G]) Status {
	fr, st := from.Get()
	if st != StatusReady {
		to.Observe(st)
		return st
	}
	to.Push(fr)
	return StatusReady
}

// FuncStage adapts a frame-to-frame function into a Transform with a
// single-slot output holder. A nil, nil return from the function means
// "not enough input yet" and surfaces as Buffering downstream. A
// non-nil error is a fault: it is logged once, the stage stops
// accepting input, and Err reports it for the driving loop to act on.
//
// The function must return a frame reference it owns; the stage
// releases it after forwarding. Pass-through stages therefore Retain
// the input before returning it rather than handing back a borrowed
// reference.
type FuncStage[FI Format, GI Geometry, FO Format, GO Geometry] struct {
	name   string
	fn     func(*Frame[FI, GI]) (*Frame[FO, GO], error)
	out    *Holder[FO, GO]
	logger *slog.Logger
	err    error
}

// NewFuncStage creates a FuncStage around fn.
func NewFuncStage[FI Format, GI Geometry, FO Format, GO Geometry](
	name string,
	logger *slog.Logger,
	fn func(*Frame[FI, GI]) (*Frame[FO, GO], error),
) *FuncStage[FI, GI, FO, GO] {
	if logger == nil {
		logger = slog.Default()
	}
	return &FuncStage[FI, GI, FO, GO]{
		name:   name,
		fn:     fn,
		out:    NewHolder[FO, GO](),
		logger: logger.With(slog.String("stage", name)),
	}
}

// Push feeds one input frame through the function.
func (s *FuncStage[FI, GI, FO, GO]) Push(fr *Frame[FI, GI]) {
	if s.err != nil {
		return
	}
	outFr, err := s.fn(fr)
	if err != nil {
		s.err = err
		s.logger.Error("stage fault, no further frames will be processed",
			slog.String("error", err.Error()),
		)
		s.out.Reset()
		return
	}
	if outFr == nil {
		s.out.Observe(StatusBuffering)
		return
	}
	s.out.Push(outFr)
	outFr.Release()
}

// Observe implements Consumer by propagating upstream status to the
// output edge.
func (s *FuncStage[FI, GI, FO, GO]) Observe(st Status) {
	if s.err != nil {
		return
	}
	s.out.Observe(st)
}

// Get implements Producer from the stage's output holder.
func (s *FuncStage[FI, GI, FO, GO]) Get() (*Frame[FO, GO], Status) {
	return s.out.Get()
}

// Status observes the output edge.
func (s *FuncStage[FI, GI, FO, GO]) Status() Status {
	return s.out.Status()
}

// Err returns the first fault the stage hit, or nil.
func (s *FuncStage[FI, GI, FO, GO]) Err() error {
	return s.err
}

// Close releases the stage's output holder.
func (s *FuncStage[FI, GI, FO, GO]) Close() {
	s.out.Close()
}
