package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogChannel writes messages to the log instead of sending them. Used when no gateway is configured.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel constructs a LogChannel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.Named("reminders")}
}

// Send logs the message.
func (c *LogChannel) Send(_ context.Context, msg Message) error {
	c.logger.Info("reminder", zap.String("to", msg.To), zap.String("text", msg.Text))
	return nil
}
