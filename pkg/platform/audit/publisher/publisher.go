package publisher

import (
	"context"
	"sync"
	"time"

	id "registrum/pkg/domain"
	audit "registrum/pkg/platform/audit"
)

// Publisher fans audit events into a store, either synchronously or through
// a buffered channel drained by a background goroutine. Sync mode is the
// default so tests observe events immediately.
type Publisher struct {
	store audit.Store

	mu     sync.Mutex
	inbox  chan audit.Event
	done   chan struct{}
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer size. Events are dropped only on Close, never silently.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		_ = p.store.Append(context.Background(), event)
	}
}

// Emit records one audit event. The category is always derived from the
// action so call sites cannot misfile an event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if p.inbox != nil && !closed {
		p.inbox <- event
		return nil
	}
	return p.store.Append(ctx, event)
}

// ListBySubject exposes the underlying store for handlers and tests.
func (p *Publisher) ListBySubject(ctx context.Context, subject id.NationalID) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Close stops the async drain goroutine, flushing buffered events first.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if p.inbox != nil {
		close(p.inbox)
		<-p.done
	}
}
