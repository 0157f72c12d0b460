package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-support-chat/internal/observability"
)

// StreamState is the lifecycle of one guarded stream.
type StreamState int

const (
	NotStarted StreamState = iota
	Streaming
	Completed
	Failed
)

func (s StreamState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Termination reasons, also used as metric labels.
const (
	EndCompleted     = "completed"
	EndIdleTimeout   = "idle_timeout"
	EndMaxDuration   = "max_duration"
	EndUpstreamError = "upstream_error"
	EndClientGone    = "client_gone"
)

var (
	// ErrFirstFragmentTimeout means the upstream produced nothing within the
	// stream's total duration.
	ErrFirstFragmentTimeout = errors.New("llm: no fragment before deadline")
	// ErrSinkClosed wraps a failed write to the consumer.
	ErrSinkClosed = errors.New("llm: stream consumer gone")
)

// Outcome describes how a stream ended.
type Outcome struct {
	State     StreamState
	Reason    string
	Delivered int    // fragments accepted by the consumer
	Text      string // concatenation of delivered fragments
}

// Stream is an opened upstream stream with an idle guard and a total
// duration guard. It is consumed exactly once with Run.
type Stream struct {
	Fallback bool

	provider  string
	upstream  <-chan Event
	upCtx     context.Context
	cancel    context.CancelFunc
	firstByte *time.Timer
	idle      time.Duration
	maxDur    time.Duration

	first   string
	started time.Time
	state   StreamState
}

// prime waits for the first fragment so that failures which happen before
// any output can still be retried or rolled back by the caller. A cancelled
// ctx is reported as ErrSinkClosed.
func (s *Stream) prime(ctx context.Context) error {
	if s.firstByte != nil {
		defer s.firstByte.Stop()
	}
	for {
		select {
		case ev, ok := <-s.upstream:
			if !ok {
				s.fail()
				return primeErr(ctx, s.upCtx, ErrEmptyResponse)
			}
			if ev.Err != nil {
				s.fail()
				return primeErr(ctx, s.upCtx, ev.Err)
			}
			if ev.Text == "" {
				continue
			}
			s.first = ev.Text
			s.started = time.Now()
			return nil
		case <-s.upCtx.Done():
			s.fail()
			return primeErr(ctx, s.upCtx, ErrFirstFragmentTimeout)
		}
	}
}

// primeErr reports why an upstream ended before its first fragment. A gone
// consumer wins over the first-fragment deadline, which wins over err.
func primeErr(ctx, upCtx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", ErrSinkClosed, cerr)
	}
	if errors.Is(context.Cause(upCtx), ErrFirstFragmentTimeout) {
		return ErrFirstFragmentTimeout
	}
	return err
}

func (s *Stream) fail() {
	s.state = Failed
	s.cancel()
}

// State reports the current lifecycle state.
func (s *Stream) State() StreamState { return s.state }

// Close releases the upstream without consuming it.
func (s *Stream) Close() {
	if s.state == NotStarted {
		s.state = Failed
	}
	s.cancel()
}

// Run forwards fragments to emit in order until the upstream ends, a guard
// fires, ctx is cancelled, or emit fails. Guards end the stream as Completed
// without an error. An upstream error or a failed emit returns an error; the
// Outcome tells how many fragments the consumer had already accepted.
func (s *Stream) Run(ctx context.Context, emit func(string) error) (out Outcome, err error) {
	defer func() {
		s.cancel()
		s.state = out.State
		observability.ObserveStreamEnd(out.Reason)
	}()

	if s.state != NotStarted {
		return Outcome{State: Failed, Reason: EndUpstreamError}, errors.New("llm: stream already consumed")
	}
	s.state = Streaming

	var text strings.Builder
	deliver := func(frag string) error {
		if err := emit(frag); err != nil {
			return fmt.Errorf("%w: %w", ErrSinkClosed, err)
		}
		out.Delivered++
		text.WriteString(frag)
		return nil
	}
	finish := func(st StreamState, reason string) {
		out.State, out.Reason, out.Text = st, reason, text.String()
	}

	if err := deliver(s.first); err != nil {
		finish(Failed, EndClientGone)
		return out, err
	}

	idle := newGuard(s.idle)
	defer idle.stop()
	var total *guard
	if s.maxDur > 0 {
		total = newGuard(max(s.maxDur-time.Since(s.started), time.Millisecond))
	} else {
		total = newGuard(0)
	}
	defer total.stop()

	for {
		select {
		case ev, ok := <-s.upstream:
			// The upstream shares ctx, so its end may be the client leaving.
			if cerr := ctx.Err(); cerr != nil {
				finish(Failed, EndClientGone)
				return out, fmt.Errorf("%w: %w", ErrSinkClosed, cerr)
			}
			if !ok {
				finish(Completed, EndCompleted)
				return out, nil
			}
			if ev.Err != nil {
				finish(Failed, EndUpstreamError)
				return out, ev.Err
			}
			if ev.Text == "" {
				continue
			}
			if err := deliver(ev.Text); err != nil {
				finish(Failed, EndClientGone)
				return out, err
			}
			idle.reset(s.idle)
		case <-idle.c():
			finish(Completed, EndIdleTimeout)
			return out, nil
		case <-total.c():
			finish(Completed, EndMaxDuration)
			return out, nil
		case <-ctx.Done():
			finish(Failed, EndClientGone)
			return out, fmt.Errorf("%w: %w", ErrSinkClosed, ctx.Err())
		}
	}
}

// guard is a resettable timer; a non-positive duration never fires.
type guard struct{ t *time.Timer }

func newGuard(d time.Duration) *guard {
	if d <= 0 {
		return &guard{}
	}
	return &guard{t: time.NewTimer(d)}
}

func (g *guard) c() <-chan time.Time {
	if g.t == nil {
		return nil
	}
	return g.t.C
}

func (g *guard) reset(d time.Duration) {
	if g.t != nil {
		g.t.Reset(d)
	}
}

func (g *guard) stop() {
	if g.t != nil {
		g.t.Stop()
	}
}
