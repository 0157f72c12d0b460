package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
)

// EntryRequest is an exact-match Q&A entry. Entries are keyed by question.
type EntryRequest struct {
	Question string `json:"question" binding:"required" example:"Returns?"`
	Answer   string `json:"answer"   binding:"required" example:"30 days"`
	Category string `json:"category" example:"orders"`
	Priority int    `json:"priority" example:"1"`
	Enabled  *bool  `json:"enabled"`
}

// ContentRequest replaces the stored chunks of one source page.
type ContentRequest struct {
	SourceURL string `json:"sourceUrl" binding:"required" example:"https://acme.test/shipping"`
	Markdown  string `json:"markdown"  binding:"required" example:"# Shipping\nWe ship worldwide."`
}

// ContentResponse reports how many chunks were stored.
type ContentResponse struct {
	SourceURL string `json:"sourceUrl"`
	Chunks    int    `json:"chunks" example:"4"`
}

// UpsertEntry godoc
// @ID          upsertKnowledgeEntry
// @Summary     Create or update an exact-match entry
// @Description A confidently matched entry is answered verbatim ahead of page content. Cached context for the tenant is dropped.
// @Tags        Knowledge
// @Accept      json
// @Produce     json
//
// @Param       X-Tenant-ID  header  string  true  "Tenant"  example(acme)
// @Param       body         body    handlers.EntryRequest  true  "Entry"
//
// @Success     200  {object}  domain.KnowledgeEntry
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /knowledge/entries [post]
func (h *Handlers) UpsertEntry(c *gin.Context) {
	var req EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question and answer are required")
		return
	}
	e, err := h.Knowledge.UpsertEntry(c.Request.Context(), middleware.TenantFrom(c), services.EntryInput{
		Question: req.Question,
		Answer:   req.Answer,
		Category: req.Category,
		Priority: req.Priority,
		Enabled:  req.Enabled,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

// IngestContent godoc
// @ID          ingestKnowledgeContent
// @Summary     Replace the content of one page
// @Description Splits a markdown document into retrieval chunks (table rows become labelled facts) and replaces the chunks stored for sourceUrl.
// @Tags        Knowledge
// @Accept      json
// @Produce     json
//
// @Param       X-Tenant-ID  header  string  true  "Tenant"  example(acme)
// @Param       body         body    handlers.ContentRequest  true  "Page"
//
// @Success     200  {object}  handlers.ContentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /knowledge/content [post]
func (h *Handlers) IngestContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sourceUrl and markdown are required")
		return
	}
	n, err := h.Knowledge.IngestMarkdown(c.Request.Context(), middleware.TenantFrom(c), req.SourceURL, strings.NewReader(req.Markdown))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ContentResponse{SourceURL: strings.TrimSpace(req.SourceURL), Chunks: n})
}
