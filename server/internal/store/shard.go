package store

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
)

const btreeDegree = 32

// shardState holds the structures that must stay consistent with each other.
// It is only touched with the owning shard's lock held.
type shardState struct {
	entries        *btree.BTreeG[record]
	expirations    *btree.BTreeG[expiration]
	keyExpirations map[string]time.Time
	subscribers    map[string]*broadcaster
	shutdown       bool
}

// shard is one independently locked partition of the keyspace.
type shard struct {
	id    int
	mu    sync.RWMutex
	state shardState

	// wake interrupts the reaper's sleep. Capacity one; sends never block,
	// so wakes coalesce.
	wake chan struct{}
	done chan struct{}

	now func() time.Time
	ops opCounters
}

// opCounters tracks per-shard operation totals.
type opCounters struct {
	gets        atomic.Uint64
	hits        atomic.Uint64
	sets        atomic.Uint64
	staleWrites atomic.Uint64
	deletes     atomic.Uint64
	reaped      atomic.Uint64
	publishes   atomic.Uint64
	deliveries  atomic.Uint64
}

func newShard(id int, now func() time.Time) *shard {
	return &shard{
		id: id,
		state: shardState{
			entries:        btree.NewG[record](btreeDegree, recordLess),
			expirations:    btree.NewG[expiration](btreeDegree, expirationLess),
			keyExpirations: make(map[string]time.Time),
			subscribers:    make(map[string]*broadcaster),
		},
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		now:  now,
	}
}

// notify wakes the reaper without blocking.
func (s *shard) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *shard) get(key []byte) (Entry, bool) {
	s.ops.gets.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.state.entries.Get(record{key: key})
	if !ok || rec.entry.expired(s.now()) {
		return Entry{}, false
	}
	s.ops.hits.Add(1)
	return rec.entry, true
}

// set stores value under key. key and value must already be owned by the
// store. With ifNewest set, the write is dropped when the key already carries
// a later deadline than the proposed one. It reports whether the write was
// applied.
func (s *shard) set(key, value []byte, deadline time.Time, ifNewest bool) bool {
	s.mu.Lock()
	st := &s.state

	// A zero deadline never expires, so no stored deadline is later than it.
	if ifNewest && !deadline.IsZero() {
		if cur, ok := st.keyExpirations[string(key)]; ok && cur.After(deadline) {
			s.mu.Unlock()
			s.ops.staleWrites.Add(1)
			return false
		}
	}

	notify := false
	if !deadline.IsZero() {
		next, ok := st.nextExpiration()
		notify = !ok || next.After(deadline)
	}

	prev, replaced := st.entries.ReplaceOrInsert(record{
		key:   key,
		entry: Entry{Data: value, ExpiresAt: deadline},
	})
	if replaced && prev.entry.HasDeadline() {
		st.unindex(prev.key, prev.entry.ExpiresAt)
	}
	if !deadline.IsZero() {
		st.index(key, deadline)
	}
	s.mu.Unlock()

	s.ops.sets.Add(1)
	if notify {
		s.notify()
	}
	return true
}

func (s *shard) delete(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.state.entries.Delete(record{key: key})
	if !ok {
		return false
	}
	if prev.entry.HasDeadline() {
		s.state.unindex(prev.key, prev.entry.ExpiresAt)
	}
	s.ops.deletes.Add(1)
	// The soonest deadline can only move later here, so the reaper is left alone.
	return true
}

// keys appends the live keys of r to dst in ascending order.
func (s *shard) keys(dst [][]byte, r keyRange) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	s.state.entries.AscendGreaterOrEqual(record{key: r.lower}, func(rec record) bool {
		if !r.belowUpper(rec.key) {
			return false
		}
		if !rec.entry.expired(now) {
			dst = append(dst, bytes.Clone(rec.key))
		}
		return true
	})
	return dst
}

// next returns the smallest live entry in r whose key is strictly greater
// than after, or greater than or equal to r.lower when after is nil.
func (s *shard) next(r keyRange, after []byte) (record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pivot := r.lower
	if after != nil {
		pivot = after
	}

	now := s.now()
	var (
		found record
		ok    bool
	)
	s.state.entries.AscendGreaterOrEqual(record{key: pivot}, func(rec record) bool {
		if !r.belowUpper(rec.key) {
			return false
		}
		if after != nil && bytes.Equal(rec.key, after) {
			return true
		}
		if rec.entry.expired(now) {
			return true
		}
		found, ok = record{key: bytes.Clone(rec.key), entry: rec.entry}, true
		return false
	})
	return found, ok
}

// sweep removes every entry whose deadline has been reached. It returns the
// next pending deadline, if any. stopped is true once the shard is shut down.
func (s *shard) sweep() (next time.Time, pending, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	if st.shutdown {
		return time.Time{}, false, true
	}

	now := s.now()
	var purged uint64
	defer func() { s.ops.reaped.Add(purged) }()

	for {
		exp, ok := st.expirations.Min()
		if !ok {
			return time.Time{}, false, false
		}
		if exp.when.After(now) {
			return exp.when, true, false
		}
		st.expirations.DeleteMin()
		if _, ok := st.entries.Delete(record{key: exp.key}); !ok {
			panic(fmt.Sprintf("store: shard %d: expiration for %q has no entry", s.id, exp.key))
		}
		delete(st.keyExpirations, string(exp.key))
		purged++
	}
}

func (s *shard) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.shutdown
}

func (s *shard) stats() ShardStats {
	s.mu.RLock()
	subs := 0
	for _, b := range s.state.subscribers {
		subs += b.count()
	}
	out := ShardStats{
		ID:          s.id,
		Keys:        s.state.entries.Len(),
		Expirations: s.state.expirations.Len(),
		Channels:    len(s.state.subscribers),
		Subscribers: subs,
	}
	s.mu.RUnlock()

	// hits is bumped after gets, so loading it first keeps Misses >= 0.
	out.Hits = s.ops.hits.Load()
	out.Gets = s.ops.gets.Load()
	out.Misses = out.Gets - out.Hits
	out.Sets = s.ops.sets.Load()
	out.StaleWrites = s.ops.staleWrites.Load()
	out.Deletes = s.ops.deletes.Load()
	out.Reaped = s.ops.reaped.Load()
	out.Publishes = s.ops.publishes.Load()
	out.Deliveries = s.ops.deliveries.Load()
	return out
}

func (st *shardState) nextExpiration() (time.Time, bool) {
	exp, ok := st.expirations.Min()
	return exp.when, ok
}

func (st *shardState) index(key []byte, when time.Time) {
	st.expirations.ReplaceOrInsert(expiration{when: when, key: key})
	st.keyExpirations[string(key)] = when
}

func (st *shardState) unindex(key []byte, when time.Time) {
	if _, ok := st.expirations.Delete(expiration{when: when, key: key}); !ok {
		panic(fmt.Sprintf("store: expiration index has no record for %q at %v", key, when))
	}
	if cur, ok := st.keyExpirations[string(key)]; !ok || !cur.Equal(when) {
		panic(fmt.Sprintf("store: key expiration for %q out of sync with index", key))
	}
	delete(st.keyExpirations, string(key))
}
