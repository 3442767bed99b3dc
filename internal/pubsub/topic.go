// Package pubsub is an in-process, best-effort broadcast of values to
// subscribers grouped by key. Nothing is persisted and late subscribers do
// not see earlier values.
package pubsub

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber queue length
const DefaultBufferSize = 16

// AllKeys subscribes to every key on a topic
const AllKeys = ""

// Subscription receives the values published to its key
type Subscription[T any] struct {
	ch    chan T
	key   string
	topic *Topic[T]
	once  sync.Once
}

// C returns the channel values arrive on. It is closed by Close or when
// the topic shuts down.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Key returns the key the subscription listens on
func (s *Subscription[T]) Key() string {
	return s.key
}

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.topic.remove(s)
}

// Topic fans values out to subscribers. Publish never blocks: when a
// subscriber's queue is full its oldest queued value is discarded.
type Topic[T any] struct {
	mu         sync.Mutex
	subs       map[string]map[*Subscription[T]]struct{}
	bufferSize int
	closed     bool
	dropped    atomic.Uint64
}

// NewTopic creates a topic whose subscribers queue up to bufferSize values
func NewTopic[T any](bufferSize int) *Topic[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Topic[T]{
		subs:       make(map[string]map[*Subscription[T]]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe listens for values published under key, or every key when
// key is AllKeys. Subscribing to a closed topic returns a closed channel.
func (t *Topic[T]) Subscribe(key string) *Subscription[T] {
	sub := &Subscription[T]{
		ch:    make(chan T, t.bufferSize),
		key:   key,
		topic: t,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	if t.subs[key] == nil {
		t.subs[key] = make(map[*Subscription[T]]struct{})
	}
	t.subs[key][sub] = struct{}{}
	return sub
}

// Publish delivers v to subscribers of key and of AllKeys
func (t *Topic[T]) Publish(key string, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	for sub := range t.subs[key] {
		t.send(sub, v)
	}
	if key != AllKeys {
		for sub := range t.subs[AllKeys] {
			t.send(sub, v)
		}
	}
}

// send must be called with t.mu held
func (t *Topic[T]) send(sub *Subscription[T], v T) {
	select {
	case sub.ch <- v:
		return
	default:
	}

	select {
	case <-sub.ch:
		t.dropped.Add(1)
	default:
	}

	select {
	case sub.ch <- v:
	default:
		t.dropped.Add(1)
	}
}

// SubscriberCount returns the number of live subscriptions for key
func (t *Topic[T]) SubscriberCount(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[key])
}

// Dropped returns how many values were discarded for slow subscribers
func (t *Topic[T]) Dropped() uint64 {
	return t.dropped.Load()
}

// Close closes every subscription; later publishes are ignored
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for key, subs := range t.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(t.subs, key)
	}
}

func (t *Topic[T]) remove(sub *Subscription[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if subs := t.subs[sub.key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(t.subs, sub.key)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
