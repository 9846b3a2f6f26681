package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventCycleStarted        EventType = "cycle.started"
	EventCycleCompleted      EventType = "cycle.completed"
	EventCycleFailed         EventType = "cycle.failed"
	EventPlanCreated         EventType = "plan.created"
	EventPodUnplaced         EventType = "pod.unplaced"
	EventPodBound            EventType = "pod.bound"
	EventPodBindFailed       EventType = "pod.bind_failed"
	EventNodeProvisioned     EventType = "node.provisioned"
	EventNodeProvisionFailed EventType = "node.provision_failed"
	EventPricingRefreshed    EventType = "pricing.refreshed"
	EventPricingFailed       EventType = "pricing.refresh_failed"
)

// Event represents something that happened during scheduling
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	CycleID   string            `json:"cycle_id,omitempty"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh ID
func NewEvent(eventType EventType, cycleID, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		CycleID:   cycleID,
		Message:   message,
		Metadata:  make(map[string]string),
	}
}

// With sets a metadata key and returns the event
func (e *Event) With(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Publisher is implemented by anything that accepts events
type Publisher interface {
	Publish(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     uint64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for all subscribers. It never blocks the caller:
// when the queue is full the event is dropped and counted.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.eventCh <- event:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many events were discarded because the queue was full
func (b *Broker) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
