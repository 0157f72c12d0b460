package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 16}))
	r.POST("/x", func(c *gin.Context) {
		k, ok := GetIdempotencyKey(c)
		if !ok {
			c.String(http.StatusOK, "-")
			return
		}
		c.String(http.StatusOK, k)
	})

	cases := []struct {
		key  string
		code int
		body string
	}{
		{"", 200, "-"},
		{"retry-1:a", 200, "retry-1:a"},
		{"has space", 400, ""},
		{strings.Repeat("k", 17), 400, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		if tc.key != "" {
			req.Header.Set(HeaderIdempotencyKey, tc.key)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("key %q: status %d", tc.key, w.Code)
		}
		if tc.code == 200 && w.Body.String() != tc.body {
			t.Fatalf("key %q: body %q", tc.key, w.Body.String())
		}
		if tc.code == 400 && !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: body %q", tc.key, w.Body.String())
		}
	}
}

func TestTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Tenant())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, TenantFrom(c)) })

	for id, want := range map[string]int{"": 400, "acme-01": 200, "bad tenant": 400, strings.Repeat("a", 65): 400} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderTenantID, id)
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("tenant %q: status %d", id, w.Code)
		}
		if want == 200 && w.Body.String() != id {
			t.Fatalf("TenantFrom = %q", w.Body.String())
		}
	}
}
