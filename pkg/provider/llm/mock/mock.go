// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/scribantia/scribantia/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Complete calls, in order. When the
	// list is exhausted, Complete returns an empty response.
	Responses []string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Fn, if non-nil, overrides Responses/Err entirely.
	Fn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteCalls records every request passed to Complete, in order.
	CompleteCalls []llm.CompletionRequest

	next int
}

// Complete records the call and returns the next queued response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	fn := p.Fn
	var content string
	var err error
	if fn == nil {
		if p.Err != nil {
			err = p.Err
		} else if p.next < len(p.Responses) {
			content = p.Responses[p.next]
			p.next++
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the most recent request, or a zero value when none.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1]
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
