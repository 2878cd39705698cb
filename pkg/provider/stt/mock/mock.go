// Package mock provides a test double for the stt.Provider interface.
//
// Pre-populate Texts with the transcripts the consumer should receive, in
// order; each Transcribe call pops the next one. Use Fn for full control.
package mock

import (
	"context"
	"sync"

	"github.com/scribantia/scribantia/pkg/provider/stt"
	"github.com/scribantia/scribantia/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Window is the audio window passed to Transcribe.
	Window types.AudioWindow
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts are returned by successive Transcribe calls, in order. When the
	// list is exhausted, Transcribe returns "".
	Texts []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Fn, if non-nil, overrides Texts/Err entirely.
	Fn func(ctx context.Context, window types.AudioWindow, language string) (string, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next queued text.
func (p *Provider) Transcribe(ctx context.Context, window types.AudioWindow, language string) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Window: window, Language: language})
	fn := p.Fn
	var text string
	var err error
	if fn == nil {
		if p.Err != nil {
			err = p.Err
		} else if p.next < len(p.Texts) {
			text = p.Texts[p.next]
			p.next++
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, window, language)
	}
	return text, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
