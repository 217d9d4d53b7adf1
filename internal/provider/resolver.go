// Package provider maps model identifiers to concrete upstream endpoints.
package provider

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"transcript-pipeline/internal/logger"
)

// Endpoint is one upstream provider: a base URL plus the environment
// variable holding its credential.
type Endpoint struct {
	Name      string
	BaseURL   string
	APIKeyEnv string
}

// Hint routes models whose identifier contains Substring to a provider.
// Hints form a priority list; the first configured match wins.
type Hint struct {
	Substring string
	Provider  string
}

// NotConfiguredError reports an explicitly requested provider whose
// credential is missing. It is a configuration error and is never retried.
type NotConfiguredError struct {
	Provider  string
	APIKeyEnv string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("provider %q selected but %s is not set", e.Provider, e.APIKeyEnv)
}

// NoProviderError reports that no resolution strategy produced a configured
// provider for a model.
type NoProviderError struct {
	Model string
}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no provider available for model %q", e.Model)
}

// Resolver resolves (model, explicit provider) pairs against a registry of
// endpoints. Credentials are looked up through a function so tests can
// inject their own environment.
type Resolver struct {
	endpoints map[string]Endpoint
	hints     []Hint
	fallback  string // universal fallback provider name, may be empty
	def       string // final default provider name, may be empty
	getenv    func(string) string
	log       *logrus.Entry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGetenv overrides credential lookup.
func WithGetenv(fn func(string) string) Option {
	return func(r *Resolver) { r.getenv = fn }
}

// New builds a resolver over the given registry. Hint order is the
// auto-detection priority order.
func New(endpoints []Endpoint, hints []Hint, fallback, def string, opts ...Option) *Resolver {
	r := &Resolver{
		endpoints: make(map[string]Endpoint, len(endpoints)),
		hints:     hints,
		fallback:  fallback,
		def:       def,
		getenv:    os.Getenv,
		log:       logger.New().WithField("component", "provider"),
	}
	for _, ep := range endpoints {
		r.endpoints[ep.Name] = ep
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default returns a resolver over the standard registry: deepseek, openai,
// openrouter and zai, with openrouter as the universal fallback and deepseek
// as the final default.
func Default(opts ...Option) *Resolver {
	endpoints := []Endpoint{
		{Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", APIKeyEnv: "DEEPSEEK_API_KEY"},
		{Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1", APIKeyEnv: "OPENROUTER_API_KEY"},
		{Name: "openai", BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
		{Name: "zai", BaseURL: "https://api.z.ai/v1", APIKeyEnv: "ZAI_API_KEY"},
	}
	hints := []Hint{
		{"deepseek", "deepseek"},
		{"gpt-", "openai"},
		{"o1", "openai"},
		{"o3", "openai"},
		{"claude", "openrouter"},
		{"anthropic/", "openrouter"},
		{"google/", "openrouter"},
		{"meta-llama/", "openrouter"},
		{"mistralai/", "openrouter"},
		{"qwen", "openrouter"},
		{"gemini", "openrouter"},
		{"llama", "openrouter"},
	}
	return New(endpoints, hints, "openrouter", "deepseek", opts...)
}

// Resolved is the outcome of a resolution: the endpoint plus its credential.
type Resolved struct {
	Endpoint
	APIKey string
}

// strategy is one step in the resolution order. It returns nil, nil when it
// has nothing to offer and the next strategy should be tried.
type strategy func(model, explicit string) (*Resolved, error)

// Resolve maps a model plus an optional explicit provider name to a
// configured endpoint, trying explicit selection, hint auto-detection, the
// universal fallback and the default provider in that order.
func (r *Resolver) Resolve(model, explicit string) (*Resolved, error) {
	strategies := []strategy{
		r.explicitProvider,
		r.hintedProvider,
		r.fallbackProvider,
		r.defaultProvider,
	}
	for _, s := range strategies {
		res, err := s(model, explicit)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, &NoProviderError{Model: model}
}

// explicitProvider honors the profile's provider field. A named but
// unconfigured provider is an error, not a fall-through.
func (r *Resolver) explicitProvider(model, explicit string) (*Resolved, error) {
	if explicit == "" {
		return nil, nil
	}
	ep, ok := r.endpoints[explicit]
	if !ok {
		return nil, &NotConfiguredError{Provider: explicit, APIKeyEnv: "unknown provider"}
	}
	key := r.getenv(ep.APIKeyEnv)
	if key == "" {
		return nil, &NotConfiguredError{Provider: explicit, APIKeyEnv: ep.APIKeyEnv}
	}
	return &Resolved{Endpoint: ep, APIKey: key}, nil
}

// hintedProvider scans the hint table in order and returns the first hinted
// provider that is configured. Matching is case-insensitive substring.
func (r *Resolver) hintedProvider(model, _ string) (*Resolved, error) {
	lower := strings.ToLower(model)
	for _, h := range r.hints {
		if !strings.Contains(lower, h.Substring) {
			continue
		}
		ep, ok := r.endpoints[h.Provider]
		if !ok {
			continue
		}
		if key := r.getenv(ep.APIKeyEnv); key != "" {
			r.log.WithFields(logrus.Fields{
				"model":    model,
				"provider": ep.Name,
			}).Debug("auto-detected provider")
			return &Resolved{Endpoint: ep, APIKey: key}, nil
		}
	}
	return nil, nil
}

func (r *Resolver) fallbackProvider(model, _ string) (*Resolved, error) {
	return r.configured(r.fallback), nil
}

func (r *Resolver) defaultProvider(model, _ string) (*Resolved, error) {
	return r.configured(r.def), nil
}

func (r *Resolver) configured(name string) *Resolved {
	if name == "" {
		return nil
	}
	ep, ok := r.endpoints[name]
	if !ok {
		return nil
	}
	key := r.getenv(ep.APIKeyEnv)
	if key == "" {
		return nil
	}
	return &Resolved{Endpoint: ep, APIKey: key}
}

// Configured reports which registered providers have credentials, for
// health reporting.
func (r *Resolver) Configured() map[string]bool {
	out := make(map[string]bool, len(r.endpoints))
	for name, ep := range r.endpoints {
		out[name] = r.getenv(ep.APIKeyEnv) != ""
	}
	return out
}
