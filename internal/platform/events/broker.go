// Package events provides a small in-process publish/subscribe broker with
// ordered, synchronous delivery.
package events

import "sync"

// Broker fans values out to subscribers in subscription order. Publish calls
// are serialised so every subscriber observes the same sequence.
type Broker[T any] struct {
	mu      sync.Mutex
	publish sync.Mutex
	nextID  uint64
	order   []uint64
	subs    map[uint64]func(T)
}

// NewBroker constructs an empty Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (b *Broker[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber before returning.
// Subscribers must not call Publish on the same broker.
func (b *Broker[T]) Publish(v T) {
	b.publish.Lock()
	defer b.publish.Unlock()
	for _, fn := range b.snapshot() {
		fn(v)
	}
}

// Len reports the number of active subscribers.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker[T]) snapshot() []func(T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.subs[id])
	}
	return out
}
