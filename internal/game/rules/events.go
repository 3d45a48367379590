package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a battle event.
type EventType string

const (
	// Lifecycle events
	EventGameCreated   EventType = "GAME_CREATED"
	EventPlayerJoined  EventType = "PLAYER_JOINED"
	EventGameStarted   EventType = "GAME_STARTED"
	EventGameFinished  EventType = "GAME_FINISHED"
	EventGameForfeited EventType = "GAME_FORFEITED"
	EventGameCancelled EventType = "GAME_CANCELLED"

	// Turn events
	EventTurnEnded   EventType = "TURN_ENDED"
	EventTurnStarted EventType = "TURN_STARTED"

	// Card events
	EventCardDrawn          EventType = "CARD_DRAWN"
	EventCardPlaced         EventType = "CARD_PLACED"
	EventModeSwitched       EventType = "MODE_SWITCHED"
	EventCardAttacked       EventType = "CARD_ATTACKED"
	EventCardDestroyed      EventType = "CARD_DESTROYED"
	EventCardReturnedToHand EventType = "CARD_RETURNED_TO_HAND"

	// Player events
	EventPlayerAttacked EventType = "PLAYER_ATTACKED"
	EventPlayerDamaged  EventType = "PLAYER_DAMAGED"
	EventPlayerHealed   EventType = "PLAYER_HEALED"

	// Ability events
	EventAbilityTriggered EventType = "ABILITY_TRIGGERED"
	EventAbilityExhausted EventType = "ABILITY_EXHAUSTED"
)

// IsTerminal returns true if the event ends the game.
func (et EventType) IsTerminal() bool {
	switch et {
	case EventGameFinished, EventGameForfeited, EventGameCancelled:
		return true
	}
	return false
}

// Event records a single state change produced while resolving an action.
type Event struct {
	Type        EventType         `json:"type"`
	TargetID    string            `json:"targetId,omitempty"` // card or player affected
	SourceID    string            `json:"sourceId,omitempty"` // board card or ability causing it
	PlayerID    string            `json:"playerId,omitempty"` // player on whose behalf it happened
	Amount      int               `json:"amount,omitempty"`
	Data        string            `json:"data,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle, typed or not.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	bus.removeTypedLocked(handle)
}

func (bus *EventBus) removeTypedLocked(handle int) {
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, targetID, sourceID, playerID string) Event {
	return Event{
		Type:      eventType,
		TargetID:  targetID,
		SourceID:  sourceID,
		PlayerID:  playerID,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, targetID, sourceID, playerID string, amount int) Event {
	evt := NewEvent(eventType, targetID, sourceID, playerID)
	evt.Amount = amount
	return evt
}

// WithMetadata returns a copy of the event carrying key=value.
func (e Event) WithMetadata(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}
