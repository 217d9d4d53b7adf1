package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"transcript-pipeline/internal/llm"
	"transcript-pipeline/internal/provider"
	"transcript-pipeline/internal/types"
)

func testResolver(keys ...string) *provider.Resolver {
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	return provider.Default(provider.WithGetenv(func(key string) string {
		if set[key] {
			return "test-key"
		}
		return ""
	}))
}

func cleanStage() *types.ProcessingStage {
	return &types.ProcessingStage{
		Name:           "clean",
		PromptTemplate: "Clean up this transcript:\n\n{transcript}",
		SystemMessage:  "You are a transcript editor.",
		Model:          "deepseek-chat",
		Temperature:    0.3,
		MaxTokens:      4096,
		Timeout:        time.Minute,
	}
}

// TestRunnerBuildsRequest checks the rendered prompt and resolved endpoint
// reach the completion capability intact.
func TestRunnerBuildsRequest(t *testing.T) {
	completer := &fakeCompleter{respond: okResponder}
	r := NewRunner(testResolver("DEEPSEEK_API_KEY"), completer)

	result, err := r.Run(context.Background(), cleanStage(), "hello world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Provider != "deepseek" {
		t.Errorf("provider = %q, want deepseek", result.Provider)
	}
	if result.InputTokens != 1000 || result.OutputTokens != 500 {
		t.Errorf("usage = %d/%d, want 1000/500", result.InputTokens, result.OutputTokens)
	}

	req := completer.calls[0]
	if !strings.Contains(req.Prompt, "hello world") {
		t.Errorf("prompt missing input text: %q", req.Prompt)
	}
	if strings.Contains(req.Prompt, "{transcript}") {
		t.Errorf("placeholder left unrendered: %q", req.Prompt)
	}
	if req.SystemMessage != "You are a transcript editor." {
		t.Errorf("system message = %q", req.SystemMessage)
	}
	if req.APIKey != "test-key" || req.BaseURL == "" {
		t.Errorf("credentials not carried through: key=%q url=%q", req.APIKey, req.BaseURL)
	}
}

// TestRunnerRetriesTransientOnce checks a rate limited call is retried
// exactly once and succeeds on the second attempt.
func TestRunnerRetriesTransientOnce(t *testing.T) {
	completer := &fakeCompleter{respond: func(n int, req llm.Request) (*llm.Result, error) {
		if n == 1 {
			return nil, &llm.APIError{Status: 429, Body: "rate limited"}
		}
		return okResponder(n, req)
	}}
	r := NewRunner(testResolver("DEEPSEEK_API_KEY"), completer)

	result, err := r.Run(context.Background(), cleanStage(), "input")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Output == "" {
		t.Error("empty output after successful retry")
	}
	if n := completer.callCount(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

// TestRunnerGivesUpAfterOneRetry checks a persistently failing upstream is
// tried twice in total, then surfaces a transient error.
func TestRunnerGivesUpAfterOneRetry(t *testing.T) {
	completer := &fakeCompleter{respond: func(n int, req llm.Request) (*llm.Result, error) {
		return nil, &llm.APIError{Status: 503, Body: "overloaded"}
	}}
	r := NewRunner(testResolver("DEEPSEEK_API_KEY"), completer)

	_, err := r.Run(context.Background(), cleanStage(), "input")
	if err == nil {
		t.Fatal("Run succeeded, want transient error")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("error kind = %s, want %s", KindOf(err), KindTransient)
	}
	if n := completer.callCount(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

// TestRunnerPermanentErrorNotRetried checks a 4xx rejection is surfaced
// after a single attempt.
func TestRunnerPermanentErrorNotRetried(t *testing.T) {
	completer := &fakeCompleter{respond: func(n int, req llm.Request) (*llm.Result, error) {
		return nil, &llm.APIError{Status: 400, Body: "bad request"}
	}}
	r := NewRunner(testResolver("DEEPSEEK_API_KEY"), completer)

	_, err := r.Run(context.Background(), cleanStage(), "input")
	if err == nil {
		t.Fatal("Run succeeded, want stage error")
	}
	if KindOf(err) != KindStage {
		t.Errorf("error kind = %s, want %s", KindOf(err), KindStage)
	}
	if n := completer.callCount(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

// TestRunnerUnconfiguredProviderFailsFast checks an explicit provider with
// no credential is a config error and the capability is never called.
func TestRunnerUnconfiguredProviderFailsFast(t *testing.T) {
	completer := &fakeCompleter{respond: okResponder}
	r := NewRunner(testResolver(), completer)

	stage := cleanStage()
	stage.Provider = "openai"
	_, err := r.Run(context.Background(), stage, "input")
	if err == nil {
		t.Fatal("Run succeeded, want config error")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("error kind = %s, want %s", KindOf(err), KindConfig)
	}
	if n := completer.callCount(); n != 0 {
		t.Errorf("attempts = %d, want 0", n)
	}
}

// TestRunnerBadTemplateFailsFast checks an unknown placeholder surfaces as
// a config error before any call is made.
func TestRunnerBadTemplateFailsFast(t *testing.T) {
	completer := &fakeCompleter{respond: okResponder}
	r := NewRunner(testResolver("DEEPSEEK_API_KEY"), completer)

	stage := cleanStage()
	stage.PromptTemplate = "Summarise {recording} for me"
	_, err := r.Run(context.Background(), stage, "input")
	if err == nil {
		t.Fatal("Run succeeded, want config error")
	}
	if KindOf(err) != KindConfig {
		t.Errorf("error kind = %s, want %s", KindOf(err), KindConfig)
	}
	if n := completer.callCount(); n != 0 {
		t.Errorf("attempts = %d, want 0", n)
	}
}
