package eventing

import (
	"context"
	"errors"
)

// Sink delivers envelopes to their downstream transport.
type Sink interface {
	Deliver(ctx context.Context, envelopes ...Envelope) error
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher writes events to the outbox and triggers dispatch. Without an outbox it
// delivers straight to the sink.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	sink     Sink
	tenantID string
}

// NewOutboxPublisher constructs a publisher backed by an outbox.
func NewOutboxPublisher(outbox OutboxWriter, dispatch *Dispatcher, tenantID string) (*Publisher, error) {
	if outbox == nil {
		return nil, errors.New("eventing: nil outbox")
	}
	return &Publisher{outbox: outbox, dispatch: dispatch, tenantID: tenantID}, nil
}

// NewDirectPublisher constructs a publisher that skips the outbox.
func NewDirectPublisher(sink Sink, tenantID string) (*Publisher, error) {
	if sink == nil {
		return nil, errors.New("eventing: nil sink")
	}
	return &Publisher{sink: sink, tenantID: tenantID}, nil
}

// Publish wraps the event in an envelope and records or delivers it.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, ""))
	if err != nil {
		return err
	}
	if env.TenantID == "" {
		env.TenantID = p.tenantID
	}
	if p.outbox == nil {
		return p.sink.Deliver(ctx, env)
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	if p.dispatch != nil {
		_ = p.dispatch.Dispatch(ctx, 1)
	}
	return nil
}
