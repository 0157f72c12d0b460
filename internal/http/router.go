// Package httpapi wires the Gin transport to the support-chat handlers and
// middleware. Middleware order is fixed here: tracing, correlation ID,
// redacting logger, recovery, body cap, metrics, idempotency-key check,
// rate limit, CORS, security headers and gzip.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-support-chat/internal/config"
	_ "github.com/tbourn/go-support-chat/internal/docs"
	"github.com/tbourn/go-support-chat/internal/http/handlers"
	"github.com/tbourn/go-support-chat/internal/http/middleware"
)

// maxBodyBytes caps request bodies, webhooks included.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches middleware and mounts the API under
// cfg.APIBasePath.
//
// Route groups:
//   - chat (visitor, no tenant header): message, stream, feedback
//   - operator (X-Tenant-ID required): chatbots, usage, knowledge
//   - billing webhooks, authenticated by signature only
func RegisterRoutes(r *gin.Engine, cfg config.Config, h *handlers.Handlers) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByTenantOrIP())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Compressing an event stream buffers it.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(apiBase, "/chat/stream")}),
	))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, apiBase)
	{
		chat := api.Group("/chat")
		chat.POST("/message", h.PostMessage)
		chat.POST("/stream", h.StreamMessage)
		chat.POST("/feedback", h.LeaveFeedback)

		op := api.Group("", middleware.Tenant())
		op.POST("/chatbots", h.CreateChatbot)
		op.GET("/chatbots", h.ListChatbots)
		op.DELETE("/chatbots/:id", h.DeleteChatbot)
		op.GET("/usage", h.GetUsage)
		op.POST("/knowledge/entries", h.UpsertEntry)
		op.POST("/knowledge/content", h.IngestContent)

		api.POST("/billing/webhooks/:provider", h.BillingWebhook)
	}
}

// corsConfig allows every origin when none are configured; the widget is
// embedded on operator sites, so credentials are never allowed.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			middleware.HeaderTenantID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{
			middleware.HeaderRequestID, handlers.HeaderReplayed, "Content-Length", "ETag",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
