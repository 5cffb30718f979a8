package store

import (
	"bytes"
	"time"
)

// Entry is a stored value together with its optional expiration deadline.
// Entries are replaced wholesale on overwrite and never mutated in place.
type Entry struct {
	Data []byte

	// ExpiresAt is the absolute deadline. The zero Time means the entry
	// never expires.
	ExpiresAt time.Time
}

// HasDeadline reports whether the entry carries an expiration deadline.
func (e Entry) HasDeadline() bool {
	return !e.ExpiresAt.IsZero()
}

// expired reports whether the deadline has been reached at now.
func (e Entry) expired(now time.Time) bool {
	return e.HasDeadline() && !now.Before(e.ExpiresAt)
}

// record is one item of a shard's ordered entry map.
type record struct {
	key   []byte
	entry Entry
}

func recordLess(a, b record) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// expiration is one item of a shard's expiration index.
type expiration struct {
	when time.Time
	key  []byte
}

func expirationLess(a, b expiration) bool {
	if c := a.when.Compare(b.when); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.key, b.key) < 0
}
