package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newAnthropicServer(t *testing.T, h http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAnthropic(srv.URL, "ak-test", "2023-06-01", 5*time.Second)
}

func TestAnthropic_Complete_RequestShape(t *testing.T) {
	var body map[string]any
	var key, version string
	p := newAnthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		key, version = r.Header.Get("x-api-key"), r.Header.Get("anthropic-version")
		body = decodeBody(t, r)
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"Hi "},{"type":"tool_use"},{"type":"text","text":"there"}]}`)
	})
	temp := 1.5
	got, err := p.Complete(context.Background(), Request{
		Model: "claude-3-5-haiku-latest", System: "sys", Temperature: &temp,
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil || got != "Hi there" {
		t.Fatalf("Complete = %q, %v", got, err)
	}
	if key != "ak-test" || version != "2023-06-01" {
		t.Fatalf("headers key=%q version=%q", key, version)
	}
	if body["system"] != "sys" || body["max_tokens"] != float64(defaultAnthropicMaxTokens) || body["temperature"] != 1.0 {
		t.Fatalf("body unexpected: %v", body)
	}
	if _, ok := body["stream"]; ok {
		t.Fatalf("stream must be omitted for Complete: %v", body)
	}
	for _, m := range body["messages"].([]any) {
		if m.(map[string]any)["role"] == "system" {
			t.Fatalf("system must not be a message: %v", body)
		}
	}
}

func TestAnthropic_OverflowError(t *testing.T) {
	p := newAnthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 250000 tokens > 200000 maximum"}}`)
	})
	_, err := p.Stream(context.Background(), Request{Model: "claude-3-opus"})
	if !errors.Is(err, ErrContextLength) {
		t.Fatalf("want overflow, got %v", err)
	}
}

func TestAnthropic_Stream(t *testing.T) {
	p := newAnthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		frames := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{}}`},
			{"content_block_start", `{"type":"content_block_start","index":0}`},
			{"ping", `{"type":"ping"}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"30 "}}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{}"}}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"days"}}`},
			{"message_stop", `{"type":"message_stop"}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"late"}}`},
		}
		for _, f := range frames {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.name, f.data)
		}
	})
	ch, err := p.Stream(context.Background(), Request{Model: "claude-3-5-sonnet"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var text string
	for ev := range ch {
		if ev.Err != nil {
			t.Fatalf("unexpected error: %v", ev.Err)
		}
		text += ev.Text
	}
	if text != "30 days" {
		t.Fatalf("text = %q", text)
	}
}

func TestAnthropic_StreamErrorEvent(t *testing.T) {
	p := newAnthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})
	ch, err := p.Stream(context.Background(), Request{Model: "claude-3-5-sonnet"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	ev := <-ch
	var pe *ProviderError
	if !errors.As(ev.Err, &pe) || pe.Code != "overloaded_error" || pe.Overflow {
		t.Fatalf("want overloaded ProviderError, got %+v", ev)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should close after error")
	}
}
