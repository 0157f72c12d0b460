package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/sysutil"
)

// ErrEmptyResponse is returned when the upstream answered with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Options are per-call parameters.
type Options struct {
	Model           string
	Temperature     *float64
	MaxOutputTokens int
}

// Adapter runs prompts against a provider with one-shot context-overflow
// recovery and guarded streaming.
type Adapter struct {
	IdleTimeout time.Duration
	MaxDuration time.Duration
}

// NewAdapter returns an Adapter with the given stream guards.
func NewAdapter(idle, maxDuration time.Duration) *Adapter {
	return &Adapter{IdleTimeout: idle, MaxDuration: maxDuration}
}

// Result is a completed answer.
type Result struct {
	Text string
	// Fallback is set when the first attempt overflowed the model's input
	// window and the answer came from the training-mode retry.
	Fallback bool
}

func (o Options) request(p Prompt) Request {
	return Request{
		Model:           o.Model,
		System:          SystemPrompt(p),
		Messages:        p.Messages(),
		Temperature:     o.Temperature,
		MaxOutputTokens: o.MaxOutputTokens,
	}
}

func tracer() trace.Tracer { return otel.Tracer("llm/Adapter") }

func callResult(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrContextLength):
		return "context_overflow"
	case errors.As(err, &pe) && pe.Temporary():
		return "unavailable"
	default:
		return "error"
	}
}

// Complete returns the whole answer. A context-overflow rejection is retried
// exactly once without knowledge; any other failure, or a second failure, is
// returned as is.
func (a *Adapter) Complete(ctx context.Context, prov Provider, p Prompt, o Options) (Result, error) {
	ctx, span := tracer().Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("llm.provider", prov.Name()),
		attribute.String("llm.model", o.Model),
	))
	defer span.End()

	text, err := prov.Complete(ctx, o.request(p))
	observability.ObserveProviderCall(prov.Name(), callResult(err))
	fallback := false
	if errors.Is(err, ErrContextLength) && !p.Training() {
		sysutil.Logger(ctx).Warn().Str("provider", prov.Name()).Msg("context overflow, retrying without knowledge")
		fallback = true
		text, err = prov.Complete(ctx, o.request(p.WithoutKnowledge()))
		observability.ObserveProviderCall(prov.Name(), callResult(err))
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		observability.FailSpan(span, err)
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("llm.fallback", fallback))
	return Result{Text: text, Fallback: fallback}, nil
}

// Stream opens a guarded stream. Overflow is detected either as the call's
// rejection or as an error arriving before the first fragment; in both cases
// the call is retried once without knowledge.
func (a *Adapter) Stream(ctx context.Context, prov Provider, p Prompt, o Options) (*Stream, error) {
	s, err := a.open(ctx, prov, o.request(p))
	if err == nil {
		err = s.prime(ctx)
	}
	if !errors.Is(err, ErrContextLength) || p.Training() {
		if err != nil {
			observability.ObserveProviderCall(prov.Name(), callResult(err))
			return nil, err
		}
		return s, nil
	}

	observability.ObserveProviderCall(prov.Name(), callResult(err))
	sysutil.Logger(ctx).Warn().Str("provider", prov.Name()).Msg("context overflow, retrying stream without knowledge")
	s, err = a.open(ctx, prov, o.request(p.WithoutKnowledge()))
	if err == nil {
		err = s.prime(ctx)
	}
	if err != nil {
		observability.ObserveProviderCall(prov.Name(), callResult(err))
		return nil, err
	}
	s.Fallback = true
	return s, nil
}

// open starts the upstream call. Until the first fragment arrives the call
// is bounded by MaxDuration, including the wait for response headers.
func (a *Adapter) open(ctx context.Context, prov Provider, req Request) (*Stream, error) {
	sctx, cancel := context.WithCancelCause(ctx)
	var firstByte *time.Timer
	if a.MaxDuration > 0 {
		firstByte = time.AfterFunc(a.MaxDuration, func() { cancel(ErrFirstFragmentTimeout) })
	}
	ch, err := prov.Stream(sctx, req)
	if err != nil {
		if firstByte != nil {
			firstByte.Stop()
		}
		err = primeErr(ctx, sctx, err)
		cancel(nil)
		return nil, err
	}
	return &Stream{
		provider:  prov.Name(),
		upstream:  ch,
		upCtx:     sctx,
		cancel:    func() { cancel(nil) },
		firstByte: firstByte,
		idle:      a.IdleTimeout,
		maxDur:    a.MaxDuration,
	}, nil
}
