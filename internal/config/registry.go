package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quenra/kalliope/pkg/provider/llm"
	"github.com/quenra/kalliope/pkg/provider/stt"
	"github.com/quenra/kalliope/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when the
// requested provider name has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories holds the name-to-constructor map for one provider kind.
type factories[T any] struct {
	mu   sync.RWMutex
	kind string
	m    map[string]func(ProviderEntry) (T, error)
}

func (f *factories[T]) register(name string, fn func(ProviderEntry) (T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = fn
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

// Registry maps configured provider names to constructors, one namespace
// per provider kind. Re-registering a name replaces the earlier factory.
// Safe for concurrent use.
type Registry struct {
	stt factories[stt.Provider]
	llm factories[llm.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", m: map[string]func(ProviderEntry) (stt.Provider, error){}},
		llm: factories[llm.Provider]{kind: "llm", m: map[string]func(ProviderEntry) (llm.Provider, error){}},
		tts: factories[tts.Provider]{kind: "tts", m: map[string]func(ProviderEntry) (tts.Provider, error){}},
	}
}

// RegisterSTT registers a transcription provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterLLM registers a reply-generation provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// CreateSTT builds the transcription provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateLLM builds the reply-generation provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateTTS builds the synthesis provider named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}
