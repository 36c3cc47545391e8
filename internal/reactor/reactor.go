// Package reactor provides the single synchronization point of a
// pipeline: stages register readiness sources and the driving loop
// blocks in CatchNextEvent until at least one fires. Everything else
// in the system is non-blocking by contract.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// ErrNoSources is returned when CatchNextEvent is called on a reactor
// with nothing registered; blocking there could never wake up.
var ErrNoSources = errors.New("no readiness sources registered")

// RegistrationError reports a failed source registration. Registration
// failures are configuration faults, not retryable conditions.
type RegistrationError struct {
	Source string
	Reason string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registering source %q: %s", e.Source, e.Reason)
}

// Source is an external condition the reactor can wait on: a capture
// device with a frame pending, a socket with a command pending. The
// channel fires (or closes) when the source may have data; readiness
// does not guarantee a complete frame is available on this iteration.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Ready returns the channel that signals readiness.
	Ready() <-chan struct{}
}

// Reactor multiplexes readiness sources for one pipeline. It is an
// explicit object passed to every stage at construction time; there is
// no ambient shared instance.
type Reactor struct {
	logger  *slog.Logger
	sources []Source
}

// New creates an empty reactor.
func New(logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{logger: logger.With(slog.String("component", "reactor"))}
}

// Register adds a readiness source. Registering nil, a source without
// a ready channel, or the same source twice fails with a
// *RegistrationError.
func (r *Reactor) Register(src Source) error {
	if src == nil {
		return &RegistrationError{Source: "<nil>", Reason: "source is nil"}
	}
	if src.Ready() == nil {
		return &RegistrationError{Source: src.Name(), Reason: "ready channel is nil"}
	}
	for _, existing := range r.sources {
		if existing == src {
			return &RegistrationError{Source: src.Name(), Reason: "already registered"}
		}
	}
	r.sources = append(r.sources, src)
	r.logger.Debug("source registered",
		slog.String("source", src.Name()),
		slog.Int("source_count", len(r.sources)),
	)
	return nil
}

// Deregister removes a source; part of cancelling a stage. Unknown
// sources are ignored.
func (r *Reactor) Deregister(src Source) {
	for i, existing := range r.sources {
		if existing == src {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			r.logger.Debug("source deregistered", slog.String("source", src.Name()))
			return
		}
	}
}

// Sources returns the currently registered sources in registration
// order.
func (r *Reactor) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// CatchNextEvent blocks until at least one registered source is ready
// or the context is cancelled, and returns every source that fired on
// this wakeup. It moves no data itself: whether a usable frame exists
// is the frame holders' business.
func (r *Reactor) CatchNextEvent(ctx context.Context) ([]Source, error) {
	if len(r.sources) == 0 {
		return nil, ErrNoSources
	}

	cases := make([]reflect.SelectCase, 0, len(r.sources)+1)
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})
	for _, src := range r.sources {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(src.Ready()),
		})
	}

	chosen, _, _ := reflect.Select(cases)
	if chosen == 0 {
		return nil, ctx.Err()
	}

	fired := []Source{r.sources[chosen-1]}

	// Sweep the remaining sources without blocking so one wakeup
	// reports everything that is currently ready.
	for i, src := range r.sources {
		if i == chosen-1 {
			continue
		}
		select {
		case <-src.Ready():
			fired = append(fired, src)
		default:
		}
	}

	return fired, nil
}
