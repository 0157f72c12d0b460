// Chat HTTP handlers.
//
//   - POST /chat/message   (whole answer as JSON)
//   - POST /chat/stream    (answer as server-sent events)
//   - POST /chat/feedback  (rate an answer)
//
// Visitors are identified by (chatbotId, sessionId); these routes carry no
// tenant header.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
)

// HeaderReplayed marks a response served from a stored idempotent result.
const HeaderReplayed = "Idempotency-Replayed"

// ChatMessageRequest is one visitor message.
type ChatMessageRequest struct {
	ChatbotID string `json:"chatbotId" binding:"required" example:"0b6f3c1e-7f41-4a43-9a0d-4a3c2f1d9e10"`
	SessionID string `json:"sessionId" binding:"required" example:"visitor-42"`
	Message   string `json:"message"   binding:"required" example:"What is your returns policy?"`
}

// ChatMessageResponse is a whole answer.
type ChatMessageResponse struct {
	Reply          string   `json:"reply"          example:"You can return any item within 30 days."`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversationId" example:"5b1e1c1a-0f6e-4f5e-8a3d-1f2e3d4c5b6a"`
	MessageID      string   `json:"messageId"      example:"6c2f2d2b-1a7f-4a6f-9b4e-2a3f4e5d6c7b"`
}

// StreamEvent is the data of one server-sent event.
type StreamEvent struct {
	Type           string `json:"type"                     example:"chunk"`
	Content        string `json:"content,omitempty"        example:"You can return"`
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message,omitempty"`
}

// FeedbackRequest rates one assistant answer.
type FeedbackRequest struct {
	ChatbotID string `json:"chatbotId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
	MessageID string `json:"messageId" binding:"required"`
	Value     int    `json:"value"     binding:"required,oneof=-1 1" example:"1"`
}

func (r ChatMessageRequest) toService(c *gin.Context) services.ChatRequest {
	key, _ := middleware.GetIdempotencyKey(c)
	return services.ChatRequest{
		ChatbotID:      strings.TrimSpace(r.ChatbotID),
		SessionID:      strings.TrimSpace(r.SessionID),
		Message:        r.Message,
		IdempotencyKey: key,
	}
}

// PostMessage godoc
// @ID          postChatMessage
// @Summary     Answer a visitor message
// @Description Reserves one message of the tenant's quota, answers from the knowledge base and returns the whole reply.
// @Description Retrying with the same Idempotency-Key returns the stored reply without charging again.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ChatMessageRequest  true  "Visitor message"
//
// @Success     200  {object}  handlers.ChatMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Message quota exhausted"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Answer could not be generated"
// @Router      /chat/message [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatbotId, sessionId and message are required")
		return
	}
	reply, err := h.Chat.Answer(c.Request.Context(), req.toService(c))
	if err != nil {
		failErr(c, err)
		return
	}
	if reply.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	sources := reply.Sources
	if sources == nil {
		sources = []string{}
	}
	ok(c, http.StatusOK, ChatMessageResponse{
		Reply:          reply.Reply,
		Sources:        sources,
		ConversationID: reply.ConversationID,
		MessageID:      reply.MessageID,
	})
}

// StreamMessage godoc
// @ID          streamChatMessage
// @Summary     Stream the answer to a visitor message
// @Description Server-sent events: any number of {"type":"chunk","content":"..."} followed by exactly one
// @Description {"type":"done","conversationId":"..."} or {"type":"error","message":"..."}.
// @Description Validation, not-found and quota failures happen before the stream opens and keep their JSON status.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
//
// @Param       body  body  handlers.ChatMessageRequest  true  "Visitor message"
//
// @Success     200  {object}  handlers.StreamEvent  "Event stream"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Message quota exhausted"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Router      /chat/stream [post]
func (h *Handlers) StreamMessage(c *gin.Context) {
	var req ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatbotId, sessionId and message are required")
		return
	}
	sink := &sseSink{c: c}
	res, err := h.Chat.Stream(c.Request.Context(), req.toService(c), sink)
	if err != nil {
		if sink.started {
			middleware.LoggerFrom(c).Error().Err(err).Msg("stream failed after headers")
			return
		}
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Debug().
		Str("state", res.State.String()).
		Str("end_reason", res.EndReason).
		Int("delivered", res.Delivered).
		Msg("stream finished")
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate an answer
// @Description Records a thumbs up (1) or down (-1) on an assistant message of the visitor's own conversation. One rating per message.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.FeedbackRequest  true  "Rating"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the visitor's answer"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already rated"
// @Router      /chat/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatbotId, sessionId, messageId and value (-1 or 1) are required")
		return
	}
	err := h.Feedback.Leave(c.Request.Context(), req.ChatbotID, req.SessionID, req.MessageID, req.Value)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrInvalidFeedback):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbiddenFeedback):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrDuplicateFeedback):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		failErr(c, err)
	}
}

// sseSink writes stream events to the response. Headers go out with the
// first event, so failures before it can still use a JSON status.
type sseSink struct {
	c       *gin.Context
	started bool
}

var _ services.Sink = (*sseSink)(nil)

func (s *sseSink) Chunk(content string) error {
	return s.send(StreamEvent{Type: "chunk", Content: content})
}

func (s *sseSink) Done(conversationID string) error {
	return s.send(StreamEvent{Type: "done", ConversationID: conversationID})
}

func (s *sseSink) Error(message string) error {
	return s.send(StreamEvent{Type: "error", Message: message})
}

func (s *sseSink) send(ev StreamEvent) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}
	if err := sse.Encode(s.c.Writer, sse.Event{Data: ev}); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}
