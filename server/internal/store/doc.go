// Package store is the in-memory engine behind ludis: a sharded, expiring
// key-value store with ordered iteration and per-key publish/subscribe.
//
// Keys are routed to one of a fixed number of shards by an FNV-1a hash.
// Each shard keeps its entries in a B-tree ordered by raw byte comparison,
// an expiration index ordered by (deadline, key) and a reverse key→deadline
// map, all guarded by one RWMutex and updated together.
//
// Every shard runs a reaper goroutine that removes expired entries and then
// sleeps until the next deadline, or until a write introduces a sooner one.
// Reads check deadlines inline, so an entry is invisible from the moment its
// deadline passes even if the reaper has not yet reclaimed it.
//
// Iteration (Iter, Range) walks shard 0 in key order, then shard 1, and so
// on. There is no global order across shards. Each Next call takes the
// shard's read lock only for the duration of one step.
//
// Prefix scans (Keys, Range) cover the half-open interval
// [prefix, successor(prefix)), where successor drops trailing 0xFF bytes and
// increments the last remaining byte. A prefix made only of 0xFF bytes has
// no upper bound.
//
// Values returned by Get, GetWithDeadline and iterators are shared with the
// store and must not be modified. Keys handed out are copies.
package store
