// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the messages the pipeline assembles
// and to feed controlled replies without a live LLM backend. All fields are
// safe to set before calling any method; mutating them during a concurrent
// call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/quenra/kalliope/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Messages is the conversation passed to Generate.
	Messages []llm.Message
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause Generate to return "" and a nil error.
type Provider struct {
	mu sync.Mutex

	// Reply is returned by Generate.
	Reply string

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// GenerateFunc, if set, is called instead of returning Reply/Err.
	GenerateFunc func(ctx context.Context, messages []llm.Message) (string, error)

	// Calls records every invocation of Generate in order.
	Calls []GenerateCall
}

// Generate records the call and returns Reply, Err (or delegates to
// GenerateFunc when set).
func (p *Provider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)

	p.mu.Lock()
	p.Calls = append(p.Calls, GenerateCall{Messages: msgs})
	fn := p.GenerateFunc
	reply, err := p.Reply, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return reply, err
}

// CallCount returns the number of recorded Generate invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent recorded call, or false when none exist.
func (p *Provider) LastCall() (GenerateCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return GenerateCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
