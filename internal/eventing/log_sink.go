package eventing

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes envelopes to the application log. Used when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs each envelope.
func (s *LogSink) Deliver(_ context.Context, envelopes ...Envelope) error {
	for _, env := range envelopes {
		s.logger.Info("domain event",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.String("tenant_id", env.TenantID),
			zap.String("empadronado_id", env.MemberID),
			zap.ByteString("payload", env.Payload))
	}
	return nil
}
