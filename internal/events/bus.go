// Package events provides a typed, sequenced in-process fan-out used to
// deliver job and batch updates to any number of subscribers.
package events

import (
	"sync"
	"time"
)

// DefaultHistory is the replay capacity used when New receives 0.
const DefaultHistory = 1024

// Envelope wraps a published value with its sequence number and publish time.
type Envelope[T any] struct {
	Seq   uint64
	Time  time.Time
	Value T
}

// Bus fans published values out to subscribers in publish order.
//
// Values for which droppable returns true are skipped for a subscriber whose
// buffer is full; every other value blocks Publish until each subscriber has
// room or unsubscribes. Late subscribers first receive the retained history.
type Bus[T any] struct {
	mu        sync.Mutex
	capacity  int
	history   []Envelope[T]
	nextSeq   uint64
	subs      map[*subscription[T]]struct{}
	closed    bool
	droppable func(T) bool
	now       func() time.Time
}

type subscription[T any] struct {
	ch      chan Envelope[T]
	done    chan struct{}
	once    sync.Once
	dropped uint64
}

// New constructs a bus retaining up to history envelopes for replay.
func New[T any](history int, droppable func(T) bool) *Bus[T] {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Bus[T]{
		capacity:  history,
		subs:      make(map[*subscription[T]]struct{}),
		droppable: droppable,
		now:       time.Now,
	}
}

// Publish stamps v and delivers it. It returns the assigned sequence, or 0
// once the bus is closed.
func (b *Bus[T]) Publish(v T) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}

	b.nextSeq++
	env := Envelope[T]{Seq: b.nextSeq, Time: b.now(), Value: v}
	if len(b.history) == b.capacity {
		copy(b.history, b.history[1:])
		b.history = b.history[:b.capacity-1]
	}
	b.history = append(b.history, env)

	lossy := b.droppable != nil && b.droppable(v)
	for sub := range b.subs {
		if lossy {
			select {
			case sub.ch <- env:
			default:
				sub.dropped++
			}
			continue
		}
		select {
		case sub.ch <- env:
		case <-sub.done:
		}
	}
	return env.Seq
}

// Subscribe returns a channel that first replays the retained history and
// then receives new envelopes, plus a cancel func that must be called when the
// subscriber stops reading. The channel is closed by cancel or Close.
func (b *Bus[T]) Subscribe(buffer int) (<-chan Envelope[T], func()) {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	sub := &subscription[T]{
		ch:   make(chan Envelope[T], len(b.history)+buffer),
		done: make(chan struct{}),
	}
	for _, env := range b.history {
		sub.ch <- env
	}
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			// Release a Publish blocked on this subscriber before taking the lock.
			close(sub.done)
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// History returns a copy of the retained envelopes.
func (b *Bus[T]) History() []Envelope[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope[T], len(b.history))
	copy(out, b.history)
	return out
}

// Close closes every subscriber channel. Later publishes are ignored and later
// subscribers receive the history followed by a closed channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
