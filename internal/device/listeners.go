package device

import "sync"

// Listeners is a thread-safe list of callbacks for one event.
// Emit snapshots the list, so a callback may add or remove listeners.
type Listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
	order  []uint64
}

// Add registers fn and returns a function that removes it
func (l *Listeners[T]) Add(fn func(T)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	l.order = append(l.order, id)

	return func() { l.remove(id) }
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.fns[id]; !ok {
		return
	}
	delete(l.fns, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Emit calls every registered listener in registration order
func (l *Listeners[T]) Emit(v T) {
	l.mu.Lock()
	snapshot := make([]func(T), 0, len(l.order))
	for _, id := range l.order {
		snapshot = append(snapshot, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

// Clear removes every listener
func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = nil
	l.order = nil
}

// Len returns the number of registered listeners
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
