package host

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Event types emitted by the host and the bridge.
const (
	EventAttributeReport = "attribute_report"
	EventEndpointAdded   = "endpoint_added"
	EventEndpointRemoved = "endpoint_removed"
	EventDeviceChanged   = "device_changed"
	EventCloudSync       = "cloud_sync"
)

// Event is one notification on the bus. Time is set by Emit when left zero.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

type EventHandler func(Event)

type subscription struct {
	id        uint64
	eventType string // empty for OnAll
	handler   EventHandler
}

// EventBus delivers events to subscribers synchronously, in the order they
// subscribed. Typed subscribers and OnAll subscribers share one ordering, so
// a store subscriber registered before the web hub sees a change first.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	now    func() time.Time
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{now: time.Now, logger: logger}
}

// On subscribes handler to one event type and returns its unsubscribe func.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.subscribe(eventType, handler)
}

// OnAll subscribes handler to every event type.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.subscribe("", handler)
}

func (eb *EventBus) subscribe(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.subs = append(eb.subs, subscription{id: id, eventType: eventType, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			eb.subs = slices.DeleteFunc(eb.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// Emit calls every matching handler before returning. A panicking handler is
// logged and skipped.
func (eb *EventBus) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = eb.now()
	}

	eb.mu.RLock()
	matched := make([]subscription, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.eventType == "" || s.eventType == event.Type {
			matched = append(matched, s)
		}
	}
	eb.mu.RUnlock()

	for _, s := range matched {
		eb.deliver(s, event)
	}
}

func (eb *EventBus) deliver(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "subscriber", s.id, "panic", r)
		}
	}()
	s.handler(event)
}
