package notify

import (
	"context"
	"time"

	"warehub/internal/events"
	"warehub/internal/metrics"

	"github.com/rs/zerolog"
)

// Sink delivers events to one external channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *events.Event) error
}

// Dispatcher fans bus events out to sinks from a background goroutine so
// publishing never waits on a broker or the Telegram API.
type Dispatcher struct {
	sinks   []Sink
	queue   chan *events.Event
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewDispatcher(queueSize int, timeout time.Duration, logger *zerolog.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan *events.Event, queueSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Attach subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Attach(bus *events.EventBus) {
	bus.Subscribe(events.AllEvents, d.enqueue)
}

func (d *Dispatcher) enqueue(event *events.Event) error {
	if len(d.sinks) == 0 {
		return nil
	}
	select {
	case d.queue <- event:
	default:
		for _, s := range d.sinks {
			metrics.IncNotification(s.Name(), "dropped")
		}
		d.logger.Warn().Str("event_id", event.ID).Str("event_type", event.Type).Msg("notification queue full, event dropped")
	}
	return nil
}

// Run delivers queued events until ctx is done. Events still queued at that
// point are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *events.Event) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Deliver(sctx, event)
		cancel()

		if err != nil {
			metrics.IncNotification(sink.Name(), "error")
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Msg("notification delivery failed")
			continue
		}
		metrics.IncNotification(sink.Name(), "ok")
	}
}
