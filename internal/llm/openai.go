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

// OpenAI talks to the Chat Completions API.
type OpenAI struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	StreamClient *http.Client
}

// NewOpenAI returns an OpenAI client with traced HTTP clients.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration) *OpenAI {
	c, s := NewHTTPClient(timeout)
	return &OpenAI{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTPClient: c, StreamClient: s}
}

func (p *OpenAI) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *OpenAI) payload(req Request, stream bool) map[string]any {
	msgs := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	body := map[string]any{
		"model":    req.Model,
		"messages": msgs,
		"stream":   stream,
	}
	caps := CapabilitiesFor(req.Model)
	if caps.Temperature && req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		body[caps.MaxTokensParam] = req.MaxOutputTokens
	}
	return body
}

func (p *OpenAI) do(ctx context.Context, client *http.Client, req Request, stream bool) (*http.Response, error) {
	if p.APIKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: "api key not configured"}
	}
	b, err := json.Marshal(p.payload(req, stream))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	hr.Header.Set("Authorization", "Bearer "+p.APIKey)
	hr.Header.Set("Content-Type", "application/json")
	if stream {
		hr.Header.Set("Accept", "text/event-stream")
	} else {
		hr.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := readAllLimit(resp.Body, 1<<20)
		return nil, p.statusError(resp.StatusCode, raw)
	}
	return resp, nil
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *OpenAI) statusError(status int, raw []byte) error {
	var env openAIError
	msg := strings.TrimSpace(string(raw))
	code := ""
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
		if s, ok := env.Error.Code.(string); ok {
			code = s
		} else {
			code = env.Error.Type
		}
	}
	return &ProviderError{
		Provider: p.Name(),
		Status:   status,
		Code:     code,
		Message:  msg,
		Overflow: isOverflow(p.Name(), code, msg),
	}
}

// Complete performs a non-streaming completion.
func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.do(ctx, p.HTTPClient, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := readAllLimit(resp.Body, 8<<20)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai: parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Status: resp.StatusCode, Message: "no choices in response"}
	}
	return out.Choices[0].Message.Content, nil
}

// Stream performs a streaming completion. Fragments are choices[0].delta.content
// values; the stream ends at the [DONE] sentinel.
func (p *OpenAI) Stream(ctx context.Context, req Request) (<-chan Event, error) {
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
			data := strings.TrimSpace(ev.Data)
			if data == "" {
				return true
			}
			if data == "[DONE]" {
				return false
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
				Error *struct {
					Message string `json:"message"`
					Code    any    `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return true
			}
			if chunk.Error != nil {
				code, _ := chunk.Error.Code.(string)
				send(Event{Err: &ProviderError{
					Provider: p.Name(),
					Code:     code,
					Message:  chunk.Error.Message,
					Overflow: isOverflow(p.Name(), code, chunk.Error.Message),
				}})
				return false
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				return true
			}
			return send(Event{Text: chunk.Choices[0].Delta.Content})
		})
		if err != nil && ctx.Err() == nil {
			send(Event{Err: fmt.Errorf("openai: read stream: %w", err)})
		}
	}()
	return ch, nil
}
