package notify

import (
	"context"
	"errors"
)

// MultiChannel sends every message through all channels.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel, skipping nil channels.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	kept := make([]Channel, 0, len(channels))
	for _, channel := range channels {
		if channel != nil {
			kept = append(kept, channel)
		}
	}
	return &MultiChannel{channels: kept}
}

// Send forwards the message to all channels and joins their errors.
func (m *MultiChannel) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, channel := range m.channels {
		if err := channel.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
