package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Anthropic talks to the Messages API.
type Anthropic struct {
	BaseURL      string
	APIKey       string
	Version      string
	HTTPClient   *http.Client
	StreamClient *http.Client
}

// NewAnthropic returns an Anthropic client with traced HTTP clients.
func NewAnthropic(baseURL, apiKey, version string, timeout time.Duration) *Anthropic {
	c, s := NewHTTPClient(timeout)
	return &Anthropic{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, Version: version, HTTPClient: c, StreamClient: s}
}

func (p *Anthropic) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// defaultAnthropicMaxTokens is sent when the caller leaves MaxOutputTokens
// unset; the Messages API requires the field.
const defaultAnthropicMaxTokens = 1024

func (p *Anthropic) payload(req Request, stream bool) map[string]any {
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	body := map[string]any{
		"model":      req.Model,
		"messages":   msgs,
		"max_tokens": maxTokens,
	}
	if stream {
		body["stream"] = true
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if CapabilitiesFor(req.Model).Temperature && req.Temperature != nil {
		// Anthropic accepts 0..1.
		body["temperature"] = min(*req.Temperature, 1.0)
	}
	return body
}

func (p *Anthropic) do(ctx context.Context, client *http.Client, req Request, stream bool) (*http.Response, error) {
	if p.APIKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: "api key not configured"}
	}
	b, err := json.Marshal(p.payload(req, stream))
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	hr.Header.Set("x-api-key", p.APIKey)
	hr.Header.Set("anthropic-version", p.Version)
	hr.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := readAllLimit(resp.Body, 1<<20)
		return nil, p.parseError(resp.StatusCode, raw)
	}
	return resp, nil
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Anthropic) parseError(status int, raw []byte) error {
	var env anthropicError
	msg := strings.TrimSpace(string(raw))
	code := ""
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		msg, code = env.Error.Message, env.Error.Type
	}
	return &ProviderError{
		Provider: p.Name(),
		Status:   status,
		Code:     code,
		Message:  msg,
		Overflow: isOverflow(p.Name(), code, msg),
	}
}

// Complete performs a non-streaming call and joins the text blocks.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.do(ctx, p.HTTPClient, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := readAllLimit(resp.Body, 8<<20)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}
	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("anthropic: parse response: %w", err)
	}
	var b strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String(), nil
}

// Stream performs a streaming call. Fragments come from content_block_delta
// events with a text_delta; message_stop ends the stream and an error event
// ends it with a failure.
func (p *Anthropic) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	resp, err := p.do(ctx, p.StreamClient, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := readSSE(resp.Body, func(ev sseEvent) bool {
			var frame struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &frame); err != nil {
				return true
			}
			kind := frame.Type
			if kind == "" {
				kind = ev.Name
			}
			switch kind {
			case "content_block_delta":
				if frame.Delta.Type != "text_delta" || frame.Delta.Text == "" {
					return true
				}
				return send(Event{Text: frame.Delta.Text})
			case "message_stop":
				return false
			case "error":
				send(Event{Err: &ProviderError{
					Provider: p.Name(),
					Code:     frame.Error.Type,
					Message:  frame.Error.Message,
					Overflow: isOverflow(p.Name(), frame.Error.Type, frame.Error.Message),
				}})
				return false
			}
			return true
		})
		if err != nil && ctx.Err() == nil {
			send(Event{Err: fmt.Errorf("anthropic: read stream: %w", err)})
		}
	}()
	return ch, nil
}
