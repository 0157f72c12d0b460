// Operator HTTP handlers. Every route here is scoped by X-Tenant-ID.
//
//   - POST   /chatbots             (create, charges chatbot quota)
//   - GET    /chatbots             (list, paginated, weak ETag)
//   - DELETE /chatbots/{id}        (delete, releases chatbot quota)
//   - GET    /usage                (plan and counters)
//   - POST   /knowledge/entries    (upsert exact-match Q&A)
//   - POST   /knowledge/content    (replace the chunks of one page)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/utils"
)

// CreateChatbotRequest is the writable part of a chatbot.
type CreateChatbotRequest struct {
	Name         string   `json:"name"         binding:"required" example:"Acme support"`
	Provider     string   `json:"provider"     example:"openai"`
	Model        string   `json:"model"        example:"gpt-4o-mini"`
	Instructions string   `json:"instructions" example:"You are Acme's friendly support assistant."`
	Temperature  *float64 `json:"temperature"  example:"0.3"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatbotsResponse is a page of chatbots.
type ListChatbotsResponse struct {
	Chatbots   []domain.Chatbot `json:"chatbots"`
	Pagination Pagination       `json:"pagination"`
}

// Meter is one usage counter against its limit. Limit -1 is unlimited.
type Meter struct {
	Used  int `json:"used"  example:"42"`
	Limit int `json:"limit" example:"100"`
}

// UsageResponse is a tenant's plan and counters.
type UsageResponse struct {
	Plan        string    `json:"plan" example:"free"`
	Messages    Meter     `json:"messages"`
	Chatbots    Meter     `json:"chatbots"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.PageParams(c.Query("page"), c.Query("page_size"), 20, 100)
}

// CreateChatbot godoc
// @ID          createChatbot
// @Summary     Create a chatbot
// @Description Reserves one chatbot of the tenant's quota and creates the chatbot. Tenants without a subscription start on the free plan.
// @Tags        Chatbots
// @Accept      json
// @Produce     json
//
// @Param       X-Tenant-ID  header  string  true  "Tenant"  example(acme)
// @Param       body         body    handlers.CreateChatbotRequest  true  "Chatbot"
//
// @Success     201  {object}  domain.Chatbot
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Chatbot quota exhausted"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chatbots [post]
func (h *Handlers) CreateChatbot(c *gin.Context) {
	var req CreateChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	b, err := h.Chatbots.Create(c.Request.Context(), middleware.TenantFrom(c), services.ChatbotInput{
		Name:         req.Name,
		Provider:     req.Provider,
		Model:        req.Model,
		Instructions: req.Instructions,
		Temperature:  req.Temperature,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// ListChatbots godoc
// @ID          listChatbots
// @Summary     List chatbots (paginated)
// @Description Returns a page of the tenant's chatbots, newest first. Supports a weak ETag via If-None-Match.
// @Tags        Chatbots
// @Produce     json
//
// @Param       X-Tenant-ID    header  string  true   "Tenant"  example(acme)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListChatbotsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chatbots [get]
func (h *Handlers) ListChatbots(c *gin.Context) {
	ctx := c.Request.Context()
	tenant := middleware.TenantFrom(c)
	page, pageSize := clampPagination(c)

	// The tag changes whenever a chatbot is added, removed or edited.
	if count, maxTS, err := h.Chatbots.Stats(ctx, tenant); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"chatbots:%s:%d:%d:%d:%d"`, tenant, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.Chatbots.ListPage(ctx, tenant, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListChatbotsResponse{
		Chatbots: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteChatbot godoc
// @ID          deleteChatbot
// @Summary     Delete a chatbot
// @Description Deletes the chatbot and releases its unit of chatbot quota.
// @Tags        Chatbots
//
// @Param       X-Tenant-ID  header  string  true  "Tenant"      example(acme)
// @Param       id           path    string  true  "Chatbot ID"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chatbots/{id} [delete]
func (h *Handlers) DeleteChatbot(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.Chatbots.Delete(c.Request.Context(), middleware.TenantFrom(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetUsage godoc
// @ID          getUsage
// @Summary     Current plan and usage
// @Tags        Usage
// @Produce     json
//
// @Param       X-Tenant-ID  header  string  true  "Tenant"  example(acme)
//
// @Success     200  {object}  handlers.UsageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Tenant has no subscription"
// @Router      /usage [get]
func (h *Handlers) GetUsage(c *gin.Context) {
	s, err := h.Usage.Snapshot(c.Request.Context(), middleware.TenantFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UsageResponse{
		Plan:        s.Plan,
		Messages:    Meter{Used: s.MessagesCount, Limit: s.MessageLimit},
		Chatbots:    Meter{Used: s.ChatbotsCount, Limit: s.ChatbotLimit},
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
	})
}
