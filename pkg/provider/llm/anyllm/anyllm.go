// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.NewOllama("llama3.1")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/quenra/kalliope/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend     anyllmlib.Provider
	model       string
	temperature *float64
	maxTokens   *int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature for all completions.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = &t }
}

// WithMaxTokens caps the completion length in tokens. Spoken replies should
// be short, so a low cap is usually right.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = &n }
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "llama3.1").
//
// backendOpts are any-llm-go configuration options (e.g.,
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL). If no API key option is
// provided, the provider falls back to the relevant environment variable
// (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY).
func New(providerName string, model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	p := &Provider{backend: backend, model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewOpenAI creates a Provider backed by OpenAI.
// Without backend options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	return New("openai", model, backendOpts, opts...)
}

// NewAnthropic creates a Provider backed by Anthropic.
// Without backend options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	return New("anthropic", model, backendOpts, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without backend options, it connects to http://localhost:11434.
func NewOllama(model string, backendOpts []anyllmlib.Option, opts ...Option) (*Provider, error) {
	return New("ollama", model, backendOpts, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	params := p.buildParams(messages)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", &llm.GenerationError{Provider: "anyllm", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &llm.GenerationError{Provider: "anyllm", Err: fmt.Errorf("empty choices in response")}
	}

	return resp.Choices[0].Message.ContentString(), nil
}

// buildParams converts the conversation into anyllm CompletionParams.
func (p *Provider) buildParams(messages []llm.Message) anyllmlib.CompletionParams {
	converted := make([]anyllmlib.Message, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: converted,
	}
	if p.temperature != nil {
		t := *p.temperature
		params.Temperature = &t
	}
	if p.maxTokens != nil {
		mt := *p.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
