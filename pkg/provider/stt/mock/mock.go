// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts without a live
// STT backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/quenra/kalliope/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// WavPath is the path passed to Transcribe.
	WavPath string
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return "" and a nil error.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, is called instead of returning Text/Err.
	TranscribeFunc func(ctx context.Context, wavPath string) (string, error)

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Text, Err (or delegates to
// TranscribeFunc when set).
func (p *Provider) Transcribe(ctx context.Context, wavPath string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{WavPath: wavPath})
	fn := p.TranscribeFunc
	text, err := p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, wavPath)
	}
	return text, err
}

// CallCount returns the number of recorded Transcribe invocations.
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

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
