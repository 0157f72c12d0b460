package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(opt SecurityOptions, mutate func(*http.Request)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveSecurity(SecurityOptions{}, nil)
	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %v", h)
	}
	if h.Get("Strict-Transport-Security") != "" || h.Get("Cache-Control") != "" || h.Get("Permissions-Policy") != "" {
		t.Fatalf("optional headers must be off by default: %v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != HeaderRequestID {
		t.Fatalf("request id must be exposed: %q", h.Get("Access-Control-Expose-Headers"))
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}

	if w := serveSecurity(opt, nil); w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS over plain http")
	}
	w := serveSecurity(opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") })
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
	w = serveSecurity(SecurityOptions{EnableHSTS: true}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default HSTS = %q", got)
	}
	if w := serveSecurity(opt, nil); w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("Permissions-Policy") == "" {
		t.Fatalf("no-store/policy missing: %v", w.Header())
	}
}
