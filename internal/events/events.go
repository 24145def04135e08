package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingRepriced      = "booking_repriced"
	EventBookingDateProposed  = "booking_date_proposed"
	EventApprovalRequested    = "approval_requested"
	EventApprovalResponded    = "approval_responded"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID        int64      `json:"booking_id"`
	CustomerID       int64      `json:"customer_id"`
	CustomerName     string     `json:"customer_name"`
	WarehouseID      int64      `json:"warehouse_id"`
	BookingType      string     `json:"booking_type"`
	Status           string     `json:"status"`
	PreviousStatus   string     `json:"previous_status,omitempty"`
	Action           string     `json:"action,omitempty"`
	TotalAmount      string     `json:"total_amount"`
	StartDate        time.Time  `json:"start_date"`
	ProposedDate     *time.Time `json:"proposed_date,omitempty"`
	ScheduledDropoff *time.Time `json:"scheduled_dropoff,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	ChangedByID      int64      `json:"changed_by_id,omitempty"`
	ChangedByRole    string     `json:"changed_by_role,omitempty"`
}

// ApprovalEventPayload describes an approval request or decision.
type ApprovalEventPayload struct {
	ApprovalID  int64  `json:"approval_id"`
	BookingID   int64  `json:"booking_id"`
	RequesterID int64  `json:"requester_id"`
	ApproverID  int64  `json:"approver_id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or for every type
// when eventType is AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
