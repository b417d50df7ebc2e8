// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to feed controlled clips without a live TTS
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/quenra/kalliope/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the reply text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause Synthesize to return an empty clip and a nil error.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize.
	Clip tts.Clip

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if set, is called instead of returning Clip/Err.
	SynthesizeFunc func(ctx context.Context, text string) (tts.Clip, error)

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Clip, Err (or delegates to
// SynthesizeFunc when set).
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text})
	fn := p.SynthesizeFunc
	clip, err := p.Clip, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return clip, err
}

// CallCount returns the number of recorded Synthesize invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
