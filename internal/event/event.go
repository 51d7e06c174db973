// Package event provides small in-process subscription primitives used to
// notify UI collaborators of state changes without the core knowing about
// screens.
package event

import "sync"

// Feed delivers values of type T to every current subscriber.
type Feed[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(T)
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[uint64]func(T))
	}
	id := f.next
	f.next++
	f.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish calls every subscriber with v. Subscribers run synchronously on
// the publishing goroutine, outside the feed's lock, so they may
// unsubscribe themselves.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	fns := make([]func(T), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Focus signals that a view became visible and should refresh its data.
type Focus struct {
	feed Feed[struct{}]
}

// OnFocus registers cb to run on every Fire.
func (f *Focus) OnFocus(cb func()) (unsubscribe func()) {
	return f.feed.Subscribe(func(struct{}) { cb() })
}

// Fire notifies every focus subscriber.
func (f *Focus) Fire() {
	f.feed.Publish(struct{}{})
}
