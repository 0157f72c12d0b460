package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/knowledge"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/sysutil"
	"github.com/tbourn/go-support-chat/internal/usage"
)

// UsageLedger is the part of the usage ledger a chat request needs.
type UsageLedger interface {
	Reserve(ctx context.Context, tenantID, kind string) (*usage.Reservation, error)
	Commit(ctx context.Context, r *usage.Reservation) error
	Rollback(ctx context.Context, r *usage.Reservation) error
}

// ContextResolver builds grounding context for a question. It never fails.
type ContextResolver interface {
	Resolve(ctx context.Context, tenantID, question string) knowledge.ChatContext
}

// ProviderLookup selects an upstream provider for a chatbot.
type ProviderLookup interface {
	Lookup(name, model string) (llm.Provider, error)
}

// Sink receives the events of one streamed answer. Exactly one of Done or
// Error ends a stream.
type Sink interface {
	Chunk(content string) error
	Done(conversationID string) error
	Error(message string) error
}

// ModelDefaults apply when a chatbot leaves a field unset.
type ModelDefaults struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	ChatbotID      string
	SessionID      string
	Message        string
	IdempotencyKey string
}

// Reply is a whole answer.
type Reply struct {
	Reply          string
	Sources        []string
	ConversationID string
	MessageID      string
	Fallback       bool
	Replayed       bool
}

// ChatState is the orchestrator's position for one request.
type ChatState int

const (
	StateInit ChatState = iota
	StateReserved
	StateContextBuilt
	StateCallingProvider
	StateStreaming
	StateResponding
	StateDone
	StateFailedPreOutput
	StateFailedPostOutput
)

var stateNames = [...]string{
	"init", "reserved", "context_built", "calling_provider", "streaming",
	"responding", "done", "failed_pre_output", "failed_post_output",
}

func (s ChatState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StreamResult reports how a streamed request ended.
type StreamResult struct {
	State          ChatState
	ConversationID string
	Delivered      int
	EndReason      string
}

// ChatService sequences one chat request: reserve usage, resolve context,
// build the prompt, call the provider, deliver the answer, then commit the
// reservation or roll it back if nothing reached the client.
type ChatService struct {
	DB         *gorm.DB
	Ledger     UsageLedger
	Context    ContextResolver
	Providers  ProviderLookup
	Adapter    *llm.Adapter
	Transcript Transcript
	Defaults   ModelDefaults

	MaxMessageRunes int
	IdempotencyTTL  time.Duration
}

func chatTracer() trace.Tracer { return otel.Tracer("services/ChatService") }

// chatRun carries the per-request state machine.
type chatRun struct {
	mode  string
	state ChatState
	bot   *domain.Chatbot
	conv  *domain.Conversation
	res   *usage.Reservation
	cc    knowledge.ChatContext
	hist  []llm.Message
	prov  llm.Provider
}

func (r *chatRun) to(s ChatState) { r.state = s }

// prepare validates the request and runs every step up to (not including)
// the provider call. Errors before the reservation carry no side effects;
// later ones roll the reservation back.
func (s *ChatService) prepare(ctx context.Context, run *chatRun, req ChatRequest) error {
	if err := s.validate(req); err != nil {
		return err
	}
	bot, err := repo.GetChatbot(ctx, s.DB, req.ChatbotID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrChatbotNotFound
	}
	if err != nil {
		return fmt.Errorf("load chatbot: %w", err)
	}
	run.bot = bot

	res, err := s.Ledger.Reserve(ctx, bot.TenantID, domain.KindMessage)
	if err != nil {
		return err
	}
	run.res = res
	run.to(StateReserved)

	conv, err := s.Transcript.Open(ctx, bot.TenantID, bot.ID, req.SessionID)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	run.conv = conv
	hist, err := s.Transcript.Recent(ctx, conv.ID, llm.CoarseHistory)
	if err != nil {
		sysutil.Logger(ctx).Warn().Err(err).Str("conversation_id", conv.ID).Msg("history unavailable, continuing without it")
		hist = nil
	}
	run.hist = hist

	run.cc = s.Context.Resolve(ctx, bot.TenantID, req.Message)
	run.to(StateContextBuilt)

	prov, err := s.Providers.Lookup(s.providerName(bot), s.model(bot))
	if err != nil {
		return &ExternalServiceError{Op: "select provider", Err: err}
	}
	run.prov = prov
	run.to(StateCallingProvider)
	return nil
}

func (s *ChatService) validate(req ChatRequest) error {
	if strings.TrimSpace(req.ChatbotID) == "" {
		return invalid("chatbotId", "is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return invalid("sessionId", "is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return invalid("message", "is empty")
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(req.Message) > s.MaxMessageRunes {
		return invalid("message", fmt.Sprintf("exceeds %d characters", s.MaxMessageRunes))
	}
	return nil
}

func (s *ChatService) providerName(b *domain.Chatbot) string {
	if b.Provider != "" {
		return b.Provider
	}
	if b.Model != "" {
		return ""
	}
	return s.Defaults.Provider
}

func (s *ChatService) model(b *domain.Chatbot) string {
	if b.Model != "" {
		return b.Model
	}
	return s.Defaults.Model
}

func (s *ChatService) prompt(run *chatRun, question string) (llm.Prompt, llm.Options) {
	temp := s.Defaults.Temperature
	if run.bot.Temperature != nil {
		temp = *run.bot.Temperature
	}
	p := llm.Prompt{
		Instructions: run.bot.Instructions,
		Knowledge:    run.cc.RelevantContent,
		Manual:       run.cc.IsManualKnowledge,
		History:      run.hist,
		Question:     strings.TrimSpace(question),
	}
	return p, llm.Options{Model: s.model(run.bot), Temperature: &temp, MaxOutputTokens: s.Defaults.MaxOutputTokens}
}

// settleTimeout bounds a reservation's closing write.
const settleTimeout = 5 * time.Second

// settleCtx detaches the ledger's closing calls from the request so that a
// client disconnect still commits or rolls back the reservation.
func settleCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// failPreOutput rolls back the reservation, if any. A failed rollback is
// logged and never replaces the original error.
func (s *ChatService) failPreOutput(ctx context.Context, run *chatRun, cause error) {
	run.to(StateFailedPreOutput)
	if run.res == nil {
		return
	}
	ctx, cancel := settleCtx(ctx)
	defer cancel()
	if err := s.Ledger.Rollback(ctx, run.res); err != nil {
		sysutil.Logger(ctx).Error().Err(err).
			Str("reservation_id", run.res.ID).
			AnErr("cause", cause).
			Msg("usage rollback failed")
	}
}

func (s *ChatService) commit(ctx context.Context, run *chatRun) {
	ctx, cancel := settleCtx(ctx)
	defer cancel()
	if err := s.Ledger.Commit(ctx, run.res); err != nil {
		sysutil.Logger(ctx).Error().Err(err).Str("reservation_id", run.res.ID).Msg("usage commit failed")
	}
}

// Answer returns a whole reply. A request repeated with the same idempotency
// key for the same chatbot and session returns the stored reply without
// charging usage again.
func (s *ChatService) Answer(ctx context.Context, req ChatRequest) (_ *Reply, err error) {
	ctx, span := chatTracer().Start(ctx, "Answer", trace.WithAttributes(
		attribute.String("chatbot.id", req.ChatbotID),
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	run := &chatRun{mode: "message"}
	defer func() {
		observability.ObserveChat(run.mode, run.state.String())
		span.SetAttributes(attribute.String("chat.state", run.state.String()))
		observability.FailSpan(span, err)
	}()

	if replay, err := s.replay(ctx, req); err != nil || replay != nil {
		if replay != nil {
			run.to(StateDone)
		}
		return replay, err
	}

	if err := s.prepare(ctx, run, req); err != nil {
		s.failPreOutput(ctx, run, err)
		return nil, err
	}

	p, opts := s.prompt(run, req.Message)
	result, err := s.Adapter.Complete(ctx, run.prov, p, opts)
	if err != nil {
		s.failPreOutput(ctx, run, err)
		return nil, &ExternalServiceError{Op: "complete", Err: err}
	}
	run.to(StateResponding)
	s.commit(ctx, run)

	sources := run.cc.Sources
	if result.Fallback {
		sources = nil
	}
	reply := &Reply{
		Reply:          result.Text,
		Sources:        sources,
		ConversationID: run.conv.ID,
		Fallback:       result.Fallback,
	}
	// A charged answer is recorded even when the caller is already gone.
	sctx, cancel := settleCtx(ctx)
	defer cancel()
	if msg, err := s.Transcript.Append(sctx, run.conv.ID, req.Message, result.Text, sources); err != nil {
		sysutil.Logger(ctx).Error().Err(err).Str("conversation_id", run.conv.ID).Msg("transcript append failed")
	} else {
		reply.MessageID = msg.ID
		s.remember(sctx, req, run.conv.ID, msg.ID)
	}
	run.to(StateDone)
	return reply, nil
}

// replay returns the stored reply for a repeated idempotency key.
func (s *ChatService) replay(ctx context.Context, req ChatRequest) (*Reply, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, req.ChatbotID, req.SessionID, req.IdempotencyKey, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, fmt.Errorf("idempotency message: %w", err)
	}
	return &Reply{
		Reply:          msg.Content,
		Sources:        msg.Sources,
		ConversationID: rec.ConversationID,
		MessageID:      msg.ID,
		Replayed:       true,
	}, nil
}

func (s *ChatService) remember(ctx context.Context, req ChatRequest, conversationID, messageID string) {
	if strings.TrimSpace(req.IdempotencyKey) == "" || s.IdempotencyTTL <= 0 {
		return
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, req.ChatbotID, req.SessionID, req.IdempotencyKey, conversationID, messageID, 200, s.IdempotencyTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		sysutil.Logger(ctx).Warn().Err(err).Msg("idempotency record not stored")
	}
}

// Stream delivers the answer as events on sink. It returns an error only
// when nothing was written to sink (validation, not found, quota and
// similar), so the caller can still answer with a plain status. Provider
// failures before the first chunk roll back usage and end with one error
// event; failures after it keep the charge and end with an error event
// unless the client is gone.
func (s *ChatService) Stream(ctx context.Context, req ChatRequest, sink Sink) (_ StreamResult, err error) {
	ctx, span := chatTracer().Start(ctx, "Stream", trace.WithAttributes(
		attribute.String("chatbot.id", req.ChatbotID),
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	run := &chatRun{mode: "stream"}
	out := StreamResult{}
	defer func() {
		observability.ObserveChat(run.mode, run.state.String())
		span.SetAttributes(attribute.String("chat.state", run.state.String()))
		observability.FailSpan(span, err)
	}()

	if err := s.prepare(ctx, run, req); err != nil {
		s.failPreOutput(ctx, run, err)
		var ext *ExternalServiceError
		if errors.As(err, &ext) {
			return s.preOutputEvent(ctx, run, sink, err), nil
		}
		out.State = run.state
		return out, err
	}
	out.ConversationID = run.conv.ID

	p, opts := s.prompt(run, req.Message)
	stream, err := s.Adapter.Stream(ctx, run.prov, p, opts)
	if err != nil {
		s.failPreOutput(ctx, run, err)
		if errors.Is(err, llm.ErrSinkClosed) {
			sysutil.Logger(ctx).Info().Err(err).Msg("client gone before first chunk")
			out.State = run.state
			return out, nil
		}
		return s.preOutputEvent(ctx, run, sink, err), nil
	}
	defer stream.Close()
	run.to(StateStreaming)

	o, runErr := stream.Run(ctx, sink.Chunk)
	out.Delivered, out.EndReason = o.Delivered, o.Reason

	switch {
	case runErr != nil && o.Delivered == 0:
		// The first write failed: nothing reached the client.
		s.failPreOutput(ctx, run, runErr)
		sysutil.Logger(ctx).Info().Err(runErr).Msg("client gone before first chunk")
	case runErr != nil:
		run.to(StateFailedPostOutput)
		s.commit(ctx, run)
		if errors.Is(runErr, llm.ErrSinkClosed) {
			sysutil.Logger(ctx).Info().Int("delivered", o.Delivered).Msg("client disconnected mid-stream")
		} else {
			sysutil.Logger(ctx).Warn().Err(runErr).Int("delivered", o.Delivered).Msg("stream failed after output")
			if werr := sink.Error(GenericFailureMessage); werr != nil {
				sysutil.Logger(ctx).Debug().Err(werr).Msg("error event not delivered")
			}
		}
	default:
		s.commit(ctx, run)
		sources := run.cc.Sources
		if stream.Fallback {
			sources = nil
		}
		if _, err := s.Transcript.Append(ctx, run.conv.ID, req.Message, o.Text, sources); err != nil {
			sysutil.Logger(ctx).Error().Err(err).Str("conversation_id", run.conv.ID).Msg("transcript append failed")
		}
		run.to(StateDone)
		if err := sink.Done(run.conv.ID); err != nil {
			sysutil.Logger(ctx).Info().Err(err).Msg("done event not delivered")
		}
	}
	out.State = run.state
	return out, nil
}

// preOutputEvent reports an upstream failure that happened before any chunk.
func (s *ChatService) preOutputEvent(ctx context.Context, run *chatRun, sink Sink, cause error) StreamResult {
	sysutil.Logger(ctx).Warn().Err(cause).Msg("answer failed before output")
	if err := sink.Error(GenericFailureMessage); err != nil {
		sysutil.Logger(ctx).Debug().Err(err).Msg("error event not delivered")
	}
	res := StreamResult{State: run.state}
	if run.conv != nil {
		res.ConversationID = run.conv.ID
	}
	return res
}
