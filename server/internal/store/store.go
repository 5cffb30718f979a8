package store

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrInvalidShardCount is returned by New when asked for fewer than one shard.
var ErrInvalidShardCount = errors.New("store: shard count must be at least 1")

// Store routes every key to one of a fixed set of shards and exposes the
// key-value, iteration and publish/subscribe API over them.
// All methods are safe for concurrent use.
type Store struct {
	shards    []*shard
	now       func() time.Time // injectable for deterministic tests
	closeOnce sync.Once
}

// ShardStats is a point-in-time view of one shard.
type ShardStats struct {
	ID          int `json:"id"`
	Keys        int `json:"keys"`
	Expirations int `json:"expirations"`
	Channels    int `json:"channels"`
	Subscribers int `json:"subscribers"`

	Gets        uint64 `json:"gets"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Sets        uint64 `json:"sets"`
	StaleWrites uint64 `json:"stale_writes"`
	Deletes     uint64 `json:"deletes"`
	Reaped      uint64 `json:"reaped"`
	Publishes   uint64 `json:"publishes"`
	Deliveries  uint64 `json:"deliveries"`
}

// Stats aggregates ShardStats across the store.
type Stats struct {
	Shards []ShardStats `json:"shards"`
	Total  ShardStats   `json:"total"`
}

// New creates a Store with the given number of shards and starts one reaper
// goroutine per shard. Call Close to stop them.
func New(shards int) (*Store, error) {
	return newStore(shards, time.Now)
}

func newStore(shards int, now func() time.Time) (*Store, error) {
	if shards < 1 {
		return nil, ErrInvalidShardCount
	}
	s := &Store{
		shards: make([]*shard, shards),
		now:    now,
	}
	for i := range s.shards {
		sh := newShard(i, now)
		s.shards[i] = sh
		go sh.reap()
	}
	return s, nil
}

// ShardCount returns the number of shards.
func (s *Store) ShardCount() int { return len(s.shards) }

// ShardFor returns the index of the shard that owns key. The result is stable
// for the lifetime of the Store.
func (s *Store) ShardFor(key []byte) int {
	h := fnv.New64a()
	h.Write(key) //nolint:errcheck // hash.Hash never fails
	return int(h.Sum64() % uint64(len(s.shards)))
}

func (s *Store) shardFor(key []byte) *shard {
	return s.shards[s.ShardFor(key)]
}

// Get returns the value stored under key. Entries whose deadline has passed
// are reported as absent even before the reaper removes them.
func (s *Store) Get(key []byte) ([]byte, bool) {
	e, ok := s.shardFor(key).get(key)
	return e.Data, ok
}

// GetWithDeadline is like Get but also returns the entry's deadline. The zero
// Time means the entry does not expire.
func (s *Store) GetWithDeadline(key []byte) ([]byte, time.Time, bool) {
	e, ok := s.shardFor(key).get(key)
	return e.Data, e.ExpiresAt, ok
}

// Set stores value under key, replacing any previous entry. A positive ttl
// makes the entry expire ttl from now; ttl <= 0 stores it without a deadline
// and clears any deadline the previous entry had. Set returns the deadline it
// stored, or the zero Time.
func (s *Store) Set(key, value []byte, ttl time.Duration) time.Time {
	var deadline time.Time
	if ttl > 0 {
		deadline = s.now().Add(ttl)
	}
	s.shardFor(key).set(own(key), own(value), deadline, false)
	return deadline
}

// SetIfNewest stores value under key with an absolute deadline unless the key
// already carries a strictly later deadline, in which case the write is
// dropped. It reports whether the write was applied. This orders replicated
// writes by deadline instead of arrival order.
//
// A zero deadline stores the value without expiration and is always applied.
func (s *Store) SetIfNewest(key, value []byte, deadline time.Time) bool {
	if !deadline.IsZero() {
		deadline = s.anchor(deadline)
	}
	return s.shardFor(key).set(own(key), own(value), deadline, true)
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key []byte) bool {
	return s.shardFor(key).delete(key)
}

// Keys returns the live keys starting with prefix, or all live keys when
// prefix is nil. Keys are ordered within each shard; shards follow each other
// in index order.
func (s *Store) Keys(prefix []byte) [][]byte {
	r := prefixRange(prefix)
	var out [][]byte
	for _, sh := range s.shards {
		out = sh.keys(out, r)
	}
	return out
}

// Iter returns an iterator over every live entry.
func (s *Store) Iter() *Iterator {
	return &Iterator{st: s}
}

// Range returns an iterator over the live entries whose keys start with
// start. A nil start iterates the whole keyspace.
func (s *Store) Range(start []byte) *Iterator {
	return &Iterator{st: s, r: prefixRange(start)}
}

// Subscribe returns a new subscription to values published on key. The key's
// channel is created on first use.
func (s *Store) Subscribe(key []byte) *Subscription {
	sh := s.shardFor(key)

	sh.mu.Lock()
	b, ok := sh.state.subscribers[string(key)]
	if !ok {
		b = newBroadcaster()
		if sh.state.shutdown {
			b.closed = true
		}
		sh.state.subscribers[string(key)] = b
	}
	sh.mu.Unlock()

	return b.subscribe(own(key))
}

// Publish sends value to every current subscriber of key and returns how many
// received it. It returns 0 when the key has never been subscribed to or has
// no active subscribers.
func (s *Store) Publish(key, value []byte) int {
	sh := s.shardFor(key)

	sh.mu.RLock()
	b := sh.state.subscribers[string(key)]
	sh.mu.RUnlock()

	sh.ops.publishes.Add(1)
	if b == nil {
		return 0
	}
	n := b.send(own(value))
	sh.ops.deliveries.Add(uint64(n))
	return n
}

// Len returns the number of entries held, including expired entries the
// reaper has not yet removed.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += sh.state.entries.Len()
		sh.mu.RUnlock()
	}
	return n
}

// Stats returns per-shard statistics and their totals.
func (s *Store) Stats() Stats {
	out := Stats{Shards: make([]ShardStats, 0, len(s.shards))}
	for _, sh := range s.shards {
		st := sh.stats()
		out.Shards = append(out.Shards, st)
		out.Total.add(st)
	}
	out.Total.ID = -1
	return out
}

// Close stops every reaper and closes every subscription. Entries remain
// readable, but expired entries are no longer reclaimed. Close is idempotent.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		var chans []*broadcaster
		for _, sh := range s.shards {
			chans = append(chans, sh.stop()...)
		}
		for _, b := range chans {
			b.close()
		}
	})
}

// anchor re-expresses deadline on the clock used for local deadlines so that
// every deadline in the expiration index compares on the same clock.
//
// Deadlines more than ~292 years away overflow time.Duration; those keep
// their wall time, without a monotonic reading, so they still order correctly.
func (s *Store) anchor(deadline time.Time) time.Time {
	now := s.now()
	if a := now.Add(deadline.Sub(now)); a.Equal(deadline) {
		return a
	}
	return deadline.Round(0)
}

func (t *ShardStats) add(o ShardStats) {
	t.Keys += o.Keys
	t.Expirations += o.Expirations
	t.Channels += o.Channels
	t.Subscribers += o.Subscribers
	t.Gets += o.Gets
	t.Hits += o.Hits
	t.Misses += o.Misses
	t.Sets += o.Sets
	t.StaleWrites += o.StaleWrites
	t.Deletes += o.Deletes
	t.Reaped += o.Reaped
	t.Publishes += o.Publishes
	t.Deliveries += o.Deliveries
}

// own returns a private copy of b. The copy is never nil.
func own(b []byte) []byte {
	return append([]byte{}, b...)
}
