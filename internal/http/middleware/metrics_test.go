package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndSplitsStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "data: {}\n\n")
	})

	before := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200"))

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/stream", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200")); got-before != 2 {
		t.Fatalf("route counter delta = %v", got-before)
	}
	if testutil.CollectAndCount(httpStreamLat) == 0 {
		t.Fatalf("stream latency series not recorded")
	}
	if testutil.ToFloat64(httpInflight) != 0 {
		t.Fatalf("inflight gauge leaked")
	}
}
