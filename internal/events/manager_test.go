package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []EventWithData
	err    error
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, e EventWithData) error {
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestManager_EmitToSubscribersAndSinks(t *testing.T) {
	m := NewManager(zerolog.Nop())
	sink := &recordingSink{}
	m.AddSink(sink)

	var got []EventType
	m.Subscribe(AccrualCompleted, func(e EventWithData) { got = append(got, e.Type) })
	m.Subscribe(WithdrawalApproved, func(e EventWithData) { t.Fatal("unexpected event") })

	m.Emit(context.Background(), "accrual", &AccrualCompletedData{RunID: "r1", Updated: 3})

	assert.Equal(t, []EventType{AccrualCompleted}, got)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "accrual", sink.events[0].Module)

	require.NoError(t, m.Close())
	assert.True(t, sink.closed)
}

func TestManager_SinkErrorAndHandlerPanicDoNotPropagate(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.AddSink(&recordingSink{err: errors.New("broker down")})
	m.Subscribe(AccrualCompleted, func(EventWithData) { panic("boom") })

	assert.NotPanics(t, func() {
		m.Emit(context.Background(), "accrual", &AccrualCompletedData{})
	})
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), "x", &AccrualCompletedData{})
	})
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_KeysByInvestor(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, log: zerolog.Nop()}

	err := sink.Publish(context.Background(), EventWithData{
		Type: WithdrawalRequested,
		Data: &WithdrawalData{Type: WithdrawalRequested, InvestorID: "inv-9", RequestedAmount: "10"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "inv-9", string(w.msgs[0].Key))
	assert.Equal(t, "WITHDRAWAL_REQUESTED", string(w.msgs[0].Headers[0].Value))

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, WithdrawalRequested, decoded.Type)

	require.NoError(t, sink.Publish(context.Background(), EventWithData{Type: AccrualCompleted, Data: &AccrualCompletedData{}}))
	assert.Nil(t, w.msgs[1].Key)
}

func TestKafkaSink_PublishDoesNotWaitForBroker(t *testing.T) {
	sink := NewKafkaSink([]string{"127.0.0.1:1"}, "fund-events", zerolog.Nop())
	t.Cleanup(func() { _ = sink.Close() })

	writer, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, writer.Async)

	start := time.Now()
	err := sink.Publish(context.Background(), EventWithData{
		Type: WithdrawalApproved,
		Data: &WithdrawalData{Type: WithdrawalApproved, InvestorID: "inv-1", RequestedAmount: "10"},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
