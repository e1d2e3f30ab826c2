package watch

import "sync"

// Value is the read side of a Variable: poll or subscribe, never mutate.
type Value[T any] interface {
	Get() T
	Subscribe(fn func(T)) (cancel func())
}

// Variable is an observable mutable cell. Writers call Set, readers either
// poll Get or subscribe for change notifications. Updates are delivered to
// subscribers in the order they were applied; a Set with a value equal to
// the current one is a no-op and fires no notification.
type Variable[T any] struct {
	// notifyMu is held for the whole of Set so that concurrent Sets cannot
	// interleave their subscriber callbacks out of order.
	notifyMu sync.Mutex

	mu     sync.Mutex
	value  T
	equal  func(a, b T) bool
	subs   map[uint64]func(T)
	nextID uint64
}

// NewVariable creates a Variable holding initial. equal suppresses no-op
// updates; a nil equal means every Set counts as a change.
func NewVariable[T any](initial T, equal func(a, b T) bool) *Variable[T] {
	return &Variable[T]{
		value: initial,
		equal: equal,
		subs:  make(map[uint64]func(T)),
	}
}

func (v *Variable[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set replaces the held value and notifies subscribers. It reports whether
// the value actually changed. Subscriber callbacks run on the caller's
// goroutine; they may call Get but must not call Set or Subscribe.
func (v *Variable[T]) Set(next T) bool {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	if v.equal != nil && v.equal(v.value, next) {
		v.mu.Unlock()
		return false
	}
	v.value = next

	fns := make([]func(T), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return true
}

// Subscribe registers fn for future updates and returns a cancel func.
// The current value is not delivered; callers that need it should Get first.
func (v *Variable[T]) Subscribe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}
