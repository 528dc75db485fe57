package vm

// Local broadcasts requested by the host and inbound network messages are
// queued here and drained by the scheduler once per tick, in arrival order.

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zurustar/blox/pkg/value"
)

// Event is a message waiting to be dispatched to scripts.
type Event struct {
	// Kind is OnMessage for local broadcasts and OnNetwork for network messages.
	Kind TriggerKind

	// Name is the message name.
	Name string

	// Sender is the program that sent a network message.
	Sender string

	// Payload is the network message payload.
	Payload value.Value

	// Timestamp is when the event was queued.
	Timestamp time.Time
}

// NewEvent creates a local broadcast event.
func NewEvent(name string) *Event {
	return &Event{
		Kind:      OnMessage,
		Name:      name,
		Timestamp: time.Now(),
	}
}

// DefaultQueueSize is the default maximum size of the message queue.
const DefaultQueueSize = 1000

// MessageQueue is a thread-safe FIFO of events.
// When the queue is full the oldest event is discarded.
type MessageQueue struct {
	events  []*Event
	maxSize int
	log     *slog.Logger
	mu      sync.Mutex
}

// NewMessageQueue creates a new queue with the default maximum size.
func NewMessageQueue(log *slog.Logger) *MessageQueue {
	return NewMessageQueueWithSize(DefaultQueueSize, log)
}

// NewMessageQueueWithSize creates a new queue with a custom maximum size.
func NewMessageQueueWithSize(maxSize int, log *slog.Logger) *MessageQueue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &MessageQueue{
		events:  make([]*Event, 0, 16),
		maxSize: maxSize,
		log:     log,
	}
}

// Push adds an event at the back of the queue.
func (q *MessageQueue) Push(event *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if len(q.events) >= q.maxSize {
		dropped := q.events[0]
		q.events = q.events[1:]
		q.log.Warn("Message queue full, dropping oldest message", "name", dropped.Name, "size", q.maxSize)
	}

	q.events = append(q.events, event)
}

// Pop removes and returns the oldest event.
// Returns nil and false if the queue is empty.
func (q *MessageQueue) Pop() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil, false
	}

	event := q.events[0]
	q.events = q.events[1:]
	return event, true
}

// Drain removes and returns every queued event in order.
func (q *MessageQueue) Drain() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := q.events
	q.events = make([]*Event, 0, 16)
	return events
}

// Len returns the number of queued events.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Clear removes all events from the queue.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = q.events[:0]
}
