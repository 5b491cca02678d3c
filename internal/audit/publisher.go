package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	id "idcapture/pkg/domain"
)

// Publisher appends flow events to a Store, either inline or through a
// bounded queue drained by one worker.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	queue     chan Event
	drained   chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

type PublisherOption func(*Publisher)

// WithBuffer queues up to size events for a background writer. When the
// queue is full, Emit drops the event and counts it instead of blocking the
// flow controller.
func WithBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.queue != nil {
		p.drained = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.drained)
	for ev := range p.queue {
		if err := p.store.Append(context.Background(), ev); err != nil {
			p.logger.Error("audit: failed to append event",
				"error", err,
				"action", ev.Action,
				"flow_id", ev.FlowID.String(),
			)
		}
	}
}

// Emit stamps ev when it has no timestamp and records it. With a buffer the
// store error is logged by the writer rather than returned.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	if p.queue == nil {
		return p.store.Append(ctx, ev)
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "audit: queue full, event dropped",
			"action", ev.Action,
			"flow_id", ev.FlowID.String(),
		)
	}
	return nil
}

// Dropped is the number of events lost to a full queue.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// List returns the trail of one flow in emission order. Events still queued
// are not part of it yet.
func (p *Publisher) List(ctx context.Context, flowID id.FlowID) ([]Event, error) {
	return p.store.ListByFlow(ctx, flowID)
}

// Close stops accepting queued events and waits until the writer has stored
// the rest. Emit must not be called after Close.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.queue == nil {
			return
		}
		close(p.queue)
		<-p.drained
	})
}
