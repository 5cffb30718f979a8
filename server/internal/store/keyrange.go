package store

import "bytes"

// keyRange is the half-open interval [lower, upper). A nil upper bound means
// the range is unbounded above.
type keyRange struct {
	lower []byte
	upper []byte
}

// prefixRange returns the range of all keys starting with prefix.
func prefixRange(prefix []byte) keyRange {
	return keyRange{lower: bytes.Clone(prefix), upper: successor(prefix)}
}

// belowUpper reports whether key falls below the upper bound. Callers start
// their scans at lower, so only the upper side needs checking.
func (r keyRange) belowUpper(key []byte) bool {
	return r.upper == nil || bytes.Compare(key, r.upper) < 0
}

// successor returns the smallest key greater than every key with the given
// prefix, or nil if no such key exists (empty prefix, or all 0xFF bytes).
func successor(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
