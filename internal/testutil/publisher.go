package testutil

import (
	"context"
	"sync"

	"github.com/vk/burstci/internal/deploy"
)

// RecordingPublisher records every publish request and returns Err.
type RecordingPublisher struct {
	Err error

	mu       sync.Mutex
	requests []deploy.Request
}

var _ deploy.Publisher = (*RecordingPublisher)(nil)

// Publish implements deploy.Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, req deploy.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.Err
}

// Requests returns the recorded requests.
func (p *RecordingPublisher) Requests() []deploy.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]deploy.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
