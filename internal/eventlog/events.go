package eventlog

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventOrderDecision      EventType = "ORDER_DECISION"
	EventOrderResult        EventType = "ORDER_RESULT"
	EventBotStart           EventType = "BOT_START"
	EventBotStop            EventType = "BOT_STOP"
	EventModeChange         EventType = "MODE_CHANGE"
	EventRiskLimitBreach    EventType = "RISK_LIMIT_BREACH"
	EventAnomaly            EventType = "ANOMALY"
	EventLLMAdvice          EventType = "LLM_ADVICE"
	EventSupervisorSnapshot EventType = "SUPERVISOR_SNAPSHOT"
	EventStrategyUpdate     EventType = "STRATEGY_UPDATE"
	EventMetaDecision       EventType = "META_DECISION"
	EventMetaAction         EventType = "META_ACTION"
)

// Event is the record written to the event log and fanned out to
// subscribers (TSDB writer, websocket stream).
type Event struct {
	Ts            float64                `json:"ts"`
	Type          EventType              `json:"type"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Data          map[string]interface{} `json:"data"`
}

// NewEvent builds an event stamped with the current wall clock.
func NewEvent(typ EventType, source string, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		Ts:     float64(time.Now().UnixNano()) / 1e9,
		Type:   typ,
		Source: source,
		Data:   data,
	}
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus fans events out to registered subscribers. Subscribers must not
// block; slow consumers buffer internally.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to type-specific and catch-all subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	typed := b.subscribers[ev.Type]
	all := b.allSubs
	b.mu.RUnlock()

	for _, sub := range typed {
		sub(ev)
	}
	for _, sub := range all {
		sub(ev)
	}
}
