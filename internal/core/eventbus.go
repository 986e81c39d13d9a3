package core

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType defines the type of event being published.
type EventType string

// Events published by the agent. The dispatch loop publishes CommandExecuted
// (payload: id, source, command, executed, reply), ScriptFinished (id, source,
// commands, skipped) and JigglerChanged (a JigglerSnapshot). The Lua engine
// publishes MacroChanged with the running macro name, the scheduler
// ScheduleChanged with its entries, and the HTTP API StorageChanged with the
// kind of data that was written. RestartRequested has no payload.
const (
	CommandExecutedEvent  EventType = "CommandExecuted"
	ScriptFinishedEvent   EventType = "ScriptFinished"
	MacroChangedEvent     EventType = "MacroChanged"
	JigglerChangedEvent   EventType = "JigglerChanged"
	ScheduleChangedEvent  EventType = "ScheduleChanged"
	StorageChangedEvent   EventType = "StorageChanged"
	RestartRequestedEvent EventType = "RestartRequested"
)

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// EventBus handles pub/sub messaging for the application.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, 100)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}

	return ch
}

// Unsubscribe removes a subscriber channel.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				// Remove the subscriber from the slice
				eb.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish distributes an event to all active subscribers for its type.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			select {
			case sub <- event:
			default:
				log.Debugf("[EventBus] Subscriber full, dropping %s", event.Type)
			}
		}
	}
}
