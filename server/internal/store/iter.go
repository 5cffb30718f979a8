package store

// Iterator walks entries shard by shard, each shard in ascending key order.
// It holds no lock between calls to Next, so writes made during a scan are
// visible to later steps. Create a new Iterator to restart a scan.
//
//	it := st.Range([]byte("user:"))
//	for it.Next() {
//		fmt.Printf("%s=%s\n", it.Key(), it.Value())
//	}
type Iterator struct {
	st    *Store
	r     keyRange
	shard int
	last  []byte // last key returned from the current shard

	key   []byte
	entry Entry
}

// Next advances to the next entry and reports whether there is one.
func (it *Iterator) Next() bool {
	for it.shard < len(it.st.shards) {
		rec, ok := it.st.shards[it.shard].next(it.r, it.last)
		if ok {
			it.key, it.entry, it.last = rec.key, rec.entry, rec.key
			return true
		}
		it.shard++
		it.last = nil
	}
	it.key, it.entry = nil, Entry{}
	return false
}

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.entry.Data }

// Entry returns the current entry.
func (it *Iterator) Entry() Entry { return it.entry }

// Shard returns the index of the shard the current entry lives in.
func (it *Iterator) Shard() int { return it.shard }
