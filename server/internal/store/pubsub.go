package store

import (
	"sync"
	"sync/atomic"
)

// SubscriberBuffer is the number of undelivered messages a subscription can
// hold. Messages published while the buffer is full are dropped for that
// subscription and counted by Lagged.
const SubscriberBuffer = 1024

// broadcaster fans published values out to every subscription on one key.
// Once created it lives as long as its shard.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*Subscription]struct{})}
}

func (b *broadcaster) subscribe(key []byte) *Subscription {
	sub := &Subscription{
		key: key,
		ch:  make(chan []byte, SubscriberBuffer),
		b:   b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// send delivers msg to every subscription with buffer space and returns the
// number that received it.
func (b *broadcaster) send(msg []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for sub := range b.subs {
		select {
		case sub.ch <- msg:
			n++
		default:
			sub.lagged.Add(1)
		}
	}
	return n
}

func (b *broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscription receives every value published to one key after it was
// created. Its channel is closed by Close or when the store is closed.
type Subscription struct {
	key    []byte
	ch     chan []byte
	b      *broadcaster
	lagged atomic.Uint64
}

// C returns the channel published values arrive on.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Key returns the key this subscription listens on.
func (s *Subscription) Key() []byte { return s.key }

// Lagged returns how many messages were dropped because the buffer was full.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// Close detaches the subscription and closes its channel. The key's channel
// itself stays registered with the shard. Close is idempotent.
func (s *Subscription) Close() { s.b.remove(s) }
