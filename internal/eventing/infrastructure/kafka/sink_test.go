package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpusap-cobranzas/internal/eventing"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSink_KeysByMember(t *testing.T) {
	writer := &fakeWriter{}
	sink, err := NewSinkWithWriter(writer)
	require.NoError(t, err)

	err = sink.Deliver(context.Background(),
		eventing.Envelope{EventID: "e-1", EventType: "PaymentApproved", TenantID: "t-1", MemberID: "m-1"},
		eventing.Envelope{EventID: "e-2", EventType: "ChargeVoided", TenantID: "t-1"},
	)
	require.NoError(t, err)
	require.Len(t, writer.msgs, 2)

	assert.Equal(t, "m-1", string(writer.msgs[0].Key))
	assert.Equal(t, "t-1", string(writer.msgs[1].Key))
	assert.Equal(t, "event_type", writer.msgs[0].Headers[0].Key)

	var env eventing.Envelope
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &env))
	assert.Equal(t, "e-1", env.EventID)

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

func TestNewSink_Validates(t *testing.T) {
	_, err := NewSink(nil, "topic")
	assert.Error(t, err)
	_, err = NewSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
