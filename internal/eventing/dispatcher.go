package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	// ListPending returns undelivered records with fewer than maxAttempts failures, oldest first.
	ListPending(ctx context.Context, limit, maxAttempts int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// Dispatcher relays pending outbox records to the sink.
type Dispatcher struct {
	outbox      OutboxStore
	sink        Sink
	maxAttempts int
	logger      *zap.Logger
}

// NewDispatcher constructs a dispatcher. Records that failed maxAttempts times stay failed.
func NewDispatcher(outbox OutboxStore, sink Sink, maxAttempts int, logger *zap.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{outbox: outbox, sink: sink, maxAttempts: maxAttempts, logger: logger}
}

// Dispatch pulls pending outbox messages and delivers them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) error {
	if d == nil || d.outbox == nil || d.sink == nil {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit, d.maxAttempts)
	if err != nil {
		return err
	}

	for _, record := range records {
		if record.Attempts >= d.maxAttempts {
			continue
		}
		if err := d.sink.Deliver(ctx, record.Envelope); err != nil {
			d.logger.Warn("outbox delivery failed",
				zap.String("outbox_id", record.ID),
				zap.String("event_type", record.Envelope.EventType),
				zap.Error(err))
			_ = d.outbox.MarkFailed(ctx, record.ID)
			continue
		}
		_ = d.outbox.MarkSent(ctx, record.ID)
	}
	return nil
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Dispatch(ctx, 0); err != nil {
				d.logger.Warn("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}
