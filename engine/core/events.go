package core

import "sync"

// EventContext carries the payload of a fired event.
type EventContext struct {
	Data struct {
		I64 [2]int64
		U64 [2]uint64

		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// An instance was appended to a component.
	/* Context usage:
	 * i32 index = data.I32[0];
	 */
	EVENT_CODE_INSTANCE_ADDED SystemEventCode = 0x01

	// An instance was removed from a component.
	/* Context usage:
	 * i32 index = data.I32[0];
	 */
	EVENT_CODE_INSTANCE_REMOVED SystemEventCode = 0x02

	// An instance moved to a new index.
	/* Context usage:
	 * i32 old_index = data.I32[0];
	 * i32 new_index = data.I32[1];
	 */
	EVENT_CODE_INSTANCE_RELOCATED SystemEventCode = 0x03

	// Every instance was removed.
	/* Context usage:
	 * i32 previous_count = data.I32[0];
	 */
	EVENT_CODE_INSTANCES_CLEARED SystemEventCode = 0x04

	// The owning component was destroyed.
	/* Context usage:
	 * i32 previous_count = data.I32[0];
	 */
	EVENT_CODE_INSTANCES_DESTROYED SystemEventCode = 0x05

	// The application config was reloaded from disk.
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x06

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem dispatches events to registered listeners. Components fire
// index-update notifications through it so external bookkeeping (selection sets,
// foliage caches) can follow instance index changes.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

func (es *EventSystem) Shutdown() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.registered = make(map[SystemEventCode][]*registeredEvent)
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if onEvent == nil {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code.
 * @returns true if the event is successfully unregistered; otherwise false.
 */
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if es == nil {
		return false
	}
	es.mu.RLock()
	events := append([]*registeredEvent(nil), es.registered[code]...)
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
