package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"warehub/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func statusEvent(t *testing.T) *events.Event {
	t.Helper()
	dropoff := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	e, err := events.NewJSONEvent(events.EventBookingStatusChanged, events.BookingEventPayload{
		BookingID:        42,
		CustomerID:       10,
		CustomerName:     "Acme",
		WarehouseID:      1,
		BookingType:      "pallet",
		Status:           "confirmed",
		PreviousStatus:   "awaiting_time_slot",
		TotalAmount:      "213.75",
		StartDate:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ScheduledDropoff: &dropoff,
	})
	require.NoError(t, err)
	return &e
}

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []*events.Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcher_FansOut(t *testing.T) {
	logger := zerolog.Nop()
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("broker down")}
	d := NewDispatcher(8, time.Second, &logger, failing, ok)

	bus := events.NewEventBus()
	d.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventApprovalRequested, events.ApprovalEventPayload{ApprovalID: 2}))

	assert.Eventually(t, func() bool { return ok.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, failing.count(), "a failing sink does not stop the others")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	logger := zerolog.Nop()
	sink := &recordingSink{name: "slow"}
	d := NewDispatcher(1, time.Second, &logger, sink)

	e := statusEvent(t)
	assert.NoError(t, d.enqueue(e))
	assert.NoError(t, d.enqueue(e))
	assert.Len(t, d.queue, 1)
}

func TestFormatEvent(t *testing.T) {
	text, ok := FormatEvent(statusEvent(t))
	require.True(t, ok)
	assert.Contains(t, text, "Booking #42: awaiting_time_slot -> confirmed")
	assert.Contains(t, text, "total: 213.75")
	assert.Contains(t, text, "Drop-off: 2025-03-10 09:00 UTC")

	created, err := events.NewJSONEvent(events.EventBookingCreated, events.BookingEventPayload{BookingID: 7, CustomerID: 10, CustomerName: "Acme"})
	require.NoError(t, err)
	text, ok = FormatEvent(&created)
	require.True(t, ok)
	assert.Contains(t, text, "Booking #7 created for Acme (10)")

	rejected, err := events.NewJSONEvent(events.EventApprovalResponded, events.ApprovalEventPayload{ApprovalID: 3, BookingID: 7, Status: "rejected", Note: "too many"})
	require.NoError(t, err)
	text, ok = FormatEvent(&rejected)
	require.True(t, ok)
	assert.Contains(t, text, "❌ Approval #3 for booking #7: rejected")
	assert.Contains(t, text, "Note: too many")

	_, ok = FormatEvent(&events.Event{Type: "unknown", Payload: []byte(`{}`)})
	assert.False(t, ok)
	_, ok = FormatEvent(&events.Event{Type: events.EventBookingCreated, Payload: []byte(`nope`)})
	assert.False(t, ok)
}

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotifier_Deliver(t *testing.T) {
	sender := &fakeSender{}
	n := &TelegramNotifier{bot: sender, chatID: -1001}

	require.NoError(t, n.Deliver(context.Background(), statusEvent(t)))
	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-1001), msg.ChatID)
	assert.Contains(t, msg.Text, "Booking #42")

	// unrenderable events are skipped
	require.NoError(t, n.Deliver(context.Background(), &events.Event{Type: "other"}))
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("telegram down")
	assert.Error(t, n.Deliver(context.Background(), statusEvent(t)))
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, msg)
	return args.Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestAMQPPublisher_Deliver(t *testing.T) {
	ch := new(mockChannel)
	p := &AMQPPublisher{channel: ch, queue: "warehub.booking.events"}
	e := statusEvent(t)

	ch.On("PublishWithContext", "", "warehub.booking.events", mock.MatchedBy(func(msg amqp.Publishing) bool {
		return msg.MessageId == e.ID &&
			msg.Type == events.EventBookingStatusChanged &&
			msg.DeliveryMode == amqp.Persistent &&
			string(msg.Body) == string(e.Payload)
	})).Return(nil).Once()
	ch.On("Close").Return(nil).Once()

	require.NoError(t, p.Deliver(context.Background(), e))
	require.NoError(t, p.Close())
	ch.AssertExpectations(t)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Deliver(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	e := statusEvent(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, p.Deliver(ctx, e))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, e.Payload, msg.Value)

	carrier := &headerCarrier{headers: msg.Headers}
	assert.Equal(t, e.ID, carrier.Get("event_id"))
	assert.Equal(t, events.EventBookingStatusChanged, carrier.Get("event_type"))
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestMessageKey_FallsBackToEventID(t *testing.T) {
	e := &events.Event{ID: "evt-1", Payload: []byte(`{"approval_id":3}`)}
	assert.Equal(t, "evt-1", string(messageKey(e)))
}
