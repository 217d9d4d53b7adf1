package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"transcript-pipeline/internal/llm"
	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/prompt"
	"transcript-pipeline/internal/provider"
	"transcript-pipeline/internal/types"
)

// Runner executes one pipeline stage: resolve a provider, build the prompt,
// invoke the completion capability, report usage.
type Runner struct {
	resolver  *provider.Resolver
	completer llm.Completer
	log       *logrus.Entry
}

// NewRunner wires a stage runner over a resolver and completion capability.
func NewRunner(resolver *provider.Resolver, completer llm.Completer) *Runner {
	return &Runner{
		resolver:  resolver,
		completer: completer,
		log:       logger.New().WithField("component", "runner"),
	}
}

// RunResult is one stage execution's output and accounting.
type RunResult struct {
	Output       string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// Run executes the stage against inputText. Transient upstream failures get
// at most one retry with backoff; configuration failures surface
// immediately. Errors come back classified (see Kind).
func (r *Runner) Run(ctx context.Context, stage *types.ProcessingStage, inputText string) (*RunResult, error) {
	resolved, err := r.resolver.Resolve(stage.Model, stage.Provider)
	if err != nil {
		return nil, classify(stage.Name, err)
	}

	fullPrompt, err := prompt.Render(stage.PromptTemplate, map[string]string{
		"transcript": inputText,
	})
	if err != nil {
		return nil, classify(stage.Name, err)
	}

	req := llm.Request{
		BaseURL:       resolved.BaseURL,
		APIKey:        resolved.APIKey,
		Model:         stage.Model,
		SystemMessage: stage.SystemMessage,
		Prompt:        fullPrompt,
		Temperature:   stage.Temperature,
		MaxTokens:     stage.MaxTokens,
		Timeout:       stage.Timeout,
	}

	log := r.log.WithFields(logrus.Fields{
		"stage":    stage.Name,
		"model":    stage.Model,
		"provider": resolved.Name,
	})

	var result *llm.Result
	operation := func() error {
		var opErr error
		result, opErr = r.completer.Complete(ctx, req)
		if opErr == nil {
			return nil
		}
		if !llm.IsTransient(opErr) {
			return backoff.Permanent(opErr)
		}
		log.WithError(opErr).Warn("transient completion failure, retrying")
		return opErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	// One bounded retry; further retry policy belongs to the caller.
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)); err != nil {
		return nil, classify(stage.Name, err)
	}

	log.WithFields(logrus.Fields{
		"input_tokens":  result.InputTokens,
		"output_tokens": result.OutputTokens,
	}).Info("stage completed")

	return &RunResult{
		Output:       result.Text,
		Provider:     resolved.Name,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, nil
}
