// Package observable provides a minimal current-value container with change
// notification: synchronous snapshot reads plus a subscribe/notify contract.
package observable

import "sync"

// Value holds a current value of type T. New subscribers receive the current
// value immediately; every Set re-notifies all subscribers. Delivery is
// latest-value-wins per subscriber, so a slow consumer never blocks Set.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[int]chan T
	nextID  int
}

// New creates a Value seeded with initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[int]chan T),
	}
}

// Get returns a snapshot of the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies all subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = val
	for _, ch := range v.subs {
		v.offer(ch, val)
	}
}

// Subscribe registers a listener. The returned channel carries the current
// value first, then every subsequent Set. The cancel func releases the
// registration and closes the channel; it is safe to call more than once.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++

	ch := make(chan T, 1)
	ch <- v.current
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// offer replaces any undelivered value so the channel always holds the most
// recent one. Caller holds v.mu.
func (v *Value[T]) offer(ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}
