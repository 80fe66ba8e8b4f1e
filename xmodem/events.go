package xmodem

import (
	"reflect"
	"sync"
)

// Event names published by the sender and receiver.
const (
	// EventLog carries a human-readable progress or diagnostic line (string).
	EventLog = "log"

	// EventStatus carries the byte count transferred so far (int64). It never
	// decreases within one transfer.
	EventStatus = "status"

	// EventCommand carries every control byte sent or received (Command).
	EventCommand = "cmd"
)

// Handler is an event subscriber.
type Handler func(args ...interface{})

type subscription struct {
	id uintptr
	fn Handler
}

// Registry maps event names to ordered subscriber lists. Each engine owns its
// own Registry; there is no process-wide instance.
//
// Subscribers are identified by their function code pointer, not by the
// state a closure captures. Subscribing the same function literal twice for
// one name replaces the earlier registration.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string][]subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string][]subscription)}
}

func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// Subscribe registers h for name. A handler with the same identity already
// registered for name is removed first, so h ends up last.
func (r *Registry) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	id := handlerID(h)

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := removeSubscription(r.hooks[name], id)
	r.hooks[name] = append(subs, subscription{id: id, fn: h})
}

// Unsubscribe removes h from name. Unknown handlers are ignored.
func (r *Registry) Unsubscribe(name string, h Handler) {
	if h == nil {
		return
	}
	id := handlerID(h)

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := removeSubscription(r.hooks[name], id)
	if len(subs) == 0 {
		delete(r.hooks, name)
		return
	}
	r.hooks[name] = subs
}

// Publish invokes every handler registered for name, synchronously and in
// registration order. Handlers run outside the registry lock and may
// subscribe or unsubscribe; changes apply from the next Publish.
func (r *Registry) Publish(name string, args ...interface{}) {
	r.mu.RLock()
	subs := r.hooks[name]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	r.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(args...)
	}
}

// Len returns the number of handlers registered for name.
func (r *Registry) Len(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[name])
}

func removeSubscription(subs []subscription, id uintptr) []subscription {
	for i, s := range subs {
		if s.id == id {
			out := make([]subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...)
		}
	}
	return subs
}
