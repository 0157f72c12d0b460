package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	in := "id=3f2b8c1e-4d5a-4b6c-8d7e-9f0a1b2c3d4e mail=jane.doe@example.com tel=+1 212-555-1212"
	got := Redact(in)
	for _, leak := range []string{"3f2b8c1e", "jane.doe", "555-1212"} {
		if strings.Contains(got, leak) {
			t.Fatalf("Redact leaked %q: %s", leak, got)
		}
	}
	for _, tag := range []string{"[REDACTED:id]", "[REDACTED:email]", "[REDACTED:phone]"} {
		if !strings.Contains(got, tag) {
			t.Fatalf("missing %s in %s", tag, got)
		}
	}
}

func TestRedactingLogger_MasksAndAttachesContextLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.POST("/hook", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/hook?email=a@b.io", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	req.Header.Set("X-Api-Key", "k")
	req.Header.Set(HeaderRequestID, "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "Bearer secret") || strings.Contains(out, "v1=abc") || strings.Contains(out, "a@b.io") {
		t.Fatalf("secrets leaked: %s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `"request_id":"rid-1"`) || !strings.Contains(lines[0], `"inside"`) {
		t.Fatalf("handler log must carry the request id: %s", out)
	}
	m := lastLine(t, buf)
	if m["level"] != "warn" || m["message"] != "http_request" || m["path"] != "/hook" {
		t.Fatalf("access log = %v", m)
	}
}
