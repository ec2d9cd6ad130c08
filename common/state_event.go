package common

import "sync"

// StateAwareEvent is a latched one-shot-per-generation event: it remembers
// the last value it fired and replays that value synchronously to any
// listener that subscribes after the fact, so a late-attached listener
// observes a completed lifecycle without polling. Reset clears the latch,
// starting a fresh generation.
type StateAwareEvent[T any] struct {
	mu        sync.Mutex
	hasFired  bool
	lastValue T
	listeners []func(T)
}

// NewStateAwareEvent creates an unfired StateAwareEvent.
func NewStateAwareEvent[T any]() *StateAwareEvent[T] {
	return &StateAwareEvent[T]{}
}

// Fire marks the event as fired, stores v as the replay value, and invokes
// every currently-subscribed listener with v. The whole update-and-dispatch
// step runs under e.mu so it cannot interleave with a concurrent Subscribe's
// replay: either Subscribe's replay of the prior value completes first and
// this Fire's delivery follows it, or this Fire's delivery (including to
// listener, if already registered) happens first and Subscribe's replay
// then observes v.
func (e *StateAwareEvent[T]) Fire(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasFired = true
	e.lastValue = v
	for _, l := range e.listeners {
		invokeListener(l, v)
	}
}

// Subscribe registers listener for future Fire calls. If the event has
// already fired, listener is additionally and synchronously invoked with
// the last fired value before Subscribe returns. The registration and the
// replay call both happen while e.mu is held, so a Fire racing with this
// Subscribe cannot deliver its value to listener before the replay does --
// a subscriber never observes an out-of-order mix of replay and live
// events.
func (e *StateAwareEvent[T]) Subscribe(listener func(T)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fired := e.hasFired
	last := e.lastValue
	e.listeners = append(e.listeners, listener)

	if fired {
		invokeListener(listener, last)
	}
}

// Reset clears hasFired and the last value, without removing listeners.
func (e *StateAwareEvent[T]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasFired = false
	var zero T
	e.lastValue = zero
}

// HasFired reports whether the event has fired since the last Reset.
func (e *StateAwareEvent[T]) HasFired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasFired
}

// invokeListener calls listener(v), swallowing any panic the listener
// raises so that one misbehaving subscriber cannot break Fire/Subscribe for
// the others.
func invokeListener[T any](listener func(T), v T) {
	defer func() { _ = recover() }()
	listener(v)
}
