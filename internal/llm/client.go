// Package llm invokes chat-completion endpoints that speak the
// OpenAI-compatible wire format, which covers every provider in the
// registry.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"transcript-pipeline/internal/logger"
)

var httpClient = &http.Client{}

// Request is one completion call. BaseURL and APIKey come from provider
// resolution; the rest from the stage definition.
type Request struct {
	BaseURL       string
	APIKey        string
	Model         string
	SystemMessage string
	Prompt        string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Result is the completion text plus reported token usage.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer is the completion capability consumed by the stage runner.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error: status=%d body=%s", e.Status, e.Body)
}

// Transient reports whether the failure class is worth one retry: rate
// limiting and server-side errors are, credential and request errors not.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient classifies an error per the retry policy: timeouts, network
// errors, 429 and 5xx responses are transient; everything else is not.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Client calls OpenAI-compatible /chat/completions endpoints. It performs a
// single attempt per call; retry policy belongs to the caller.
type Client struct{}

// NewClient returns a completion client.
func NewClient() *Client {
	return &Client{}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete performs one completion call bounded by req.Timeout.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	log := logger.New().WithField("component", "llm").WithField("model", req.Model)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	start := time.Now()
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response: %s", truncate(string(respBody), 512))
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("input_tokens", parsed.Usage.PromptTokens).
		WithField("output_tokens", parsed.Usage.CompletionTokens).
		Debug("completion finished")

	return &Result{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
