package llm

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns a traced client for upstream calls. timeout bounds
// non-streaming calls only. Streams are bounded by their context, which the
// Adapter cancels when no fragment arrives within its MaxDuration.
func NewHTTPClient(timeout time.Duration) (complete, stream *http.Client) {
	tr := otelhttp.NewTransport(http.DefaultTransport)
	return &http.Client{Transport: tr, Timeout: timeout}, &http.Client{Transport: tr}
}
