package store

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for deterministic expiry tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, shards int) *Store {
	t.Helper()
	st, err := New(shards)
	if err != nil {
		t.Fatalf("New(%d): %v", shards, err)
	}
	t.Cleanup(st.Close)
	return st
}

func newClockedStore(t *testing.T, shards int) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	st, err := newStore(shards, clock.Now)
	if err != nil {
		t.Fatalf("newStore(%d): %v", shards, err)
	}
	t.Cleanup(st.Close)
	return st, clock
}

// waitFor polls cond until it returns true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// checkLockstep verifies that entries, the expiration index and the reverse
// deadline map agree in every shard.
func checkLockstep(t *testing.T, st *Store) {
	t.Helper()
	for _, sh := range st.shards {
		sh.mu.RLock()
		withDeadline := 0
		sh.state.entries.Ascend(func(rec record) bool {
			if !rec.entry.HasDeadline() {
				if _, ok := sh.state.keyExpirations[string(rec.key)]; ok {
					t.Errorf("shard %d: %q has no deadline but is in keyExpirations", sh.id, rec.key)
				}
				return true
			}
			withDeadline++
			when, ok := sh.state.keyExpirations[string(rec.key)]
			if !ok || !when.Equal(rec.entry.ExpiresAt) {
				t.Errorf("shard %d: keyExpirations[%q] = %v, want %v", sh.id, rec.key, when, rec.entry.ExpiresAt)
			}
			if !sh.state.expirations.Has(expiration{when: rec.entry.ExpiresAt, key: rec.key}) {
				t.Errorf("shard %d: expiration index missing %q", sh.id, rec.key)
			}
			return true
		})
		if n := sh.state.expirations.Len(); n != withDeadline {
			t.Errorf("shard %d: expiration index has %d records, want %d", sh.id, n, withDeadline)
		}
		if n := len(sh.state.keyExpirations); n != withDeadline {
			t.Errorf("shard %d: keyExpirations has %d keys, want %d", sh.id, n, withDeadline)
		}
		sh.mu.RUnlock()
	}
}

func sortedStrings(keys [][]byte) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func TestNew_RejectsZeroShards(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n); !errors.Is(err, ErrInvalidShardCount) {
			t.Errorf("New(%d): got %v, want ErrInvalidShardCount", n, err)
		}
	}
}

func TestShardFor_Stable(t *testing.T) {
	st := newTestStore(t, 10)
	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		first := st.ShardFor(key)
		if first < 0 || first >= st.ShardCount() {
			t.Fatalf("ShardFor(%q) = %d, out of range", key, first)
		}
		for j := 0; j < 3; j++ {
			if got := st.ShardFor(key); got != first {
				t.Fatalf("ShardFor(%q): got %d, then %d", key, first, got)
			}
		}
	}
}

func TestSetAndGet(t *testing.T) {
	st := newTestStore(t, 4)
	st.Set([]byte("foo"), []byte("bar"), 0)

	v, ok := st.Get([]byte("foo"))
	if !ok || string(v) != "bar" {
		t.Fatalf("Get(foo): got %q, %v; want bar, true", v, ok)
	}

	_, deadline, ok := st.GetWithDeadline([]byte("foo"))
	if !ok || !deadline.IsZero() {
		t.Errorf("GetWithDeadline(foo): deadline %v, ok %v; want zero, true", deadline, ok)
	}
}

func TestGet_Missing(t *testing.T) {
	st := newTestStore(t, 4)
	if v, ok := st.Get([]byte("aaacc")); ok {
		t.Fatalf("Get on empty store: got %q, want absent", v)
	}
	if _, _, ok := st.GetWithDeadline([]byte("aaacc")); ok {
		t.Fatal("GetWithDeadline on empty store: want absent")
	}
}

func TestSet_CopiesCallerBuffers(t *testing.T) {
	st := newTestStore(t, 1)
	key := []byte("k")
	val := []byte("value")
	st.Set(key, val, 0)

	key[0] = 'x'
	val[0] = 'X'

	v, ok := st.Get([]byte("k"))
	if !ok || string(v) != "value" {
		t.Errorf("Get(k) after caller mutation: got %q, %v", v, ok)
	}
}

func TestSet_OverwriteWithoutTTLClearsDeadline(t *testing.T) {
	st := newTestStore(t, 4)
	st.Set([]byte("k"), []byte("v"), time.Hour)

	if _, d, _ := st.GetWithDeadline([]byte("k")); d.IsZero() {
		t.Fatal("expected a deadline after Set with TTL")
	}

	st.Set([]byte("k"), []byte("v"), 0)
	_, d, ok := st.GetWithDeadline([]byte("k"))
	if !ok {
		t.Fatal("key missing after overwrite")
	}
	if !d.IsZero() {
		t.Errorf("deadline after overwrite without TTL: got %v, want none", d)
	}
	if n := st.Stats().Total.Expirations; n != 0 {
		t.Errorf("pending expirations: got %d, want 0", n)
	}
	checkLockstep(t, st)
}

func TestGet_HidesExpiredBeforeReap(t *testing.T) {
	st, clock := newClockedStore(t, 1)
	st.Set([]byte("k"), []byte("v"), time.Minute)

	clock.Advance(time.Minute - time.Nanosecond)
	if _, ok := st.Get([]byte("k")); !ok {
		t.Fatal("Get just before deadline: want present")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := st.Get([]byte("k")); ok {
		t.Fatal("Get at deadline: want absent")
	}
	if keys := st.Keys(nil); len(keys) != 0 {
		t.Errorf("Keys at deadline: got %q, want none", keys)
	}
	if st.Iter().Next() {
		t.Error("Iter at deadline: want no entries")
	}
	// Not yet reclaimed: the reaper is still sleeping on the real clock.
	if st.Len() != 1 {
		t.Errorf("Len before reap: got %d, want 1", st.Len())
	}
}

func TestReaper_PurgesAfterWake(t *testing.T) {
	st, clock := newClockedStore(t, 1)
	st.Set([]byte("k"), []byte("v"), time.Hour)
	st.Set([]byte("keep"), []byte("v"), 3*time.Hour)

	clock.Advance(2 * time.Hour)
	st.shards[0].notify()

	if !waitFor(t, 2*time.Second, func() bool { return st.Len() == 1 }) {
		t.Fatalf("Len after wake: got %d, want 1", st.Len())
	}
	if _, ok := st.Get([]byte("keep")); !ok {
		t.Error("entry with a future deadline was reaped")
	}
	if got := st.Stats().Total.Reaped; got != 1 {
		t.Errorf("Reaped: got %d, want 1", got)
	}
	checkLockstep(t, st)
}

func TestReaper_PurgesOnTimer(t *testing.T) {
	st := newTestStore(t, 2)
	st.Set([]byte("short"), []byte("v"), 50*time.Millisecond)

	if _, ok := st.Get([]byte("short")); !ok {
		t.Fatal("Get immediately after Set: want present")
	}
	if !waitFor(t, 2*time.Second, func() bool { return st.Len() == 0 }) {
		t.Fatal("entry was not reaped within 2s")
	}
}

func TestReaper_WokenBySoonerDeadline(t *testing.T) {
	st := newTestStore(t, 1)
	st.Set([]byte("later"), []byte("v"), time.Hour)

	// Let the reaper settle into its one-hour sleep.
	time.Sleep(20 * time.Millisecond)

	st.Set([]byte("sooner"), []byte("v"), 30*time.Millisecond)
	if !waitFor(t, 2*time.Second, func() bool { return st.Len() == 1 }) {
		t.Fatal("sooner deadline did not wake the reaper")
	}
	if _, ok := st.Get([]byte("later")); !ok {
		t.Error("later entry was reaped early")
	}
}

func TestSetIfNewest_DropsEarlierDeadline(t *testing.T) {
	st := newTestStore(t, 4)
	now := time.Now()
	t1 := now.Add(2 * time.Second)
	t2 := now.Add(10 * time.Second)

	if !st.SetIfNewest([]byte("aa"), []byte("v1"), t2) {
		t.Fatal("first SetIfNewest: want applied")
	}
	if st.SetIfNewest([]byte("aa"), []byte("v2"), t1) {
		t.Error("SetIfNewest with earlier deadline: want dropped")
	}

	v, d, ok := st.GetWithDeadline([]byte("aa"))
	if !ok || string(v) != "v1" {
		t.Fatalf("Get(aa): got %q, %v; want v1", v, ok)
	}
	if !d.Equal(t2) {
		t.Errorf("deadline: got %v, want %v", d, t2)
	}
	if got := st.Stats().Total.StaleWrites; got != 1 {
		t.Errorf("StaleWrites: got %d, want 1", got)
	}
	checkLockstep(t, st)
}

func TestSetIfNewest_FarFutureDeadlinesKeepOrder(t *testing.T) {
	st := newTestStore(t, 4)
	later := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)

	if !st.SetIfNewest([]byte("far"), []byte("v1"), later) {
		t.Fatal("first SetIfNewest: want applied")
	}
	if st.SetIfNewest([]byte("far"), []byte("v2"), earlier) {
		t.Error("SetIfNewest with earlier far-future deadline: want dropped")
	}

	v, d, ok := st.GetWithDeadline([]byte("far"))
	if !ok || string(v) != "v1" {
		t.Fatalf("Get(far): got %q, %v; want v1", v, ok)
	}
	if !d.Equal(later) {
		t.Errorf("deadline: got %v, want %v", d, later)
	}
	checkLockstep(t, st)
}

func TestSetIfNewest_AcceptsEqualAndLaterDeadlines(t *testing.T) {
	st := newTestStore(t, 4)
	d := time.Now().Add(time.Minute)

	st.SetIfNewest([]byte("k"), []byte("v1"), d)
	if !st.SetIfNewest([]byte("k"), []byte("v2"), d) {
		t.Error("equal deadline: want applied")
	}
	if !st.SetIfNewest([]byte("k"), []byte("v3"), d.Add(time.Second)) {
		t.Error("later deadline: want applied")
	}
	if v, _ := st.Get([]byte("k")); string(v) != "v3" {
		t.Errorf("Get(k): got %q, want v3", v)
	}
	checkLockstep(t, st)
}

func TestSetIfNewest_OverwritesEntryWithoutDeadline(t *testing.T) {
	st := newTestStore(t, 4)
	st.Set([]byte("k"), []byte("forever"), 0)

	if !st.SetIfNewest([]byte("k"), []byte("v"), time.Now().Add(time.Minute)) {
		t.Fatal("want applied over an entry without deadline")
	}
	if v, _ := st.Get([]byte("k")); string(v) != "v" {
		t.Errorf("Get(k): got %q, want v", v)
	}
}

func TestSetIfNewest_ZeroDeadlineAlwaysApplies(t *testing.T) {
	st := newTestStore(t, 2)
	st.SetIfNewest([]byte("k"), []byte("timed"), time.Now().Add(time.Hour))

	if !st.SetIfNewest([]byte("k"), []byte("forever"), time.Time{}) {
		t.Fatal("zero deadline: want applied")
	}
	v, d, ok := st.GetWithDeadline([]byte("k"))
	if !ok || string(v) != "forever" || !d.IsZero() {
		t.Errorf("GetWithDeadline(k): got %q, %v, %v; want forever without deadline", v, d, ok)
	}
	checkLockstep(t, st)
}

func TestExpirationLockstep_RandomOps(t *testing.T) {
	st := newTestStore(t, 3)
	rng := rand.New(rand.NewSource(7))
	base := time.Now()

	for i := 0; i < 2000; i++ {
		key := []byte(fmt.Sprintf("k%02d", rng.Intn(40)))
		switch rng.Intn(4) {
		case 0:
			st.Set(key, []byte("v"), 0)
		case 1:
			st.Set(key, []byte("v"), time.Duration(1+rng.Intn(100))*time.Hour)
		case 2:
			st.SetIfNewest(key, []byte("v"), base.Add(time.Duration(1+rng.Intn(100))*time.Hour))
		case 3:
			st.Delete(key)
		}
		if i%100 == 0 {
			checkLockstep(t, st)
		}
	}
	checkLockstep(t, st)
}

func TestDelete(t *testing.T) {
	st := newTestStore(t, 2)
	st.Set([]byte("k"), []byte("v"), time.Hour)

	if !st.Delete([]byte("k")) {
		t.Fatal("Delete existing: want true")
	}
	if st.Delete([]byte("k")) {
		t.Error("Delete missing: want false")
	}
	if _, ok := st.Get([]byte("k")); ok {
		t.Error("Get after Delete: want absent")
	}
	checkLockstep(t, st)
}

func TestKeys_Prefix(t *testing.T) {
	for _, shards := range []int{1, 10} {
		t.Run(fmt.Sprintf("shards=%d", shards), func(t *testing.T) {
			st := newTestStore(t, shards)
			for _, k := range []string{
				"aa", "vasdad", "sadad", "aqwewqe", "vlzczxc",
				"1313213213", "asdasdsadasd", "031dasdadawd",
			} {
				st.Set([]byte(k), []byte("aaaaadascasc"), time.Hour)
			}

			got := st.Keys([]byte("a"))
			if shards == 1 {
				want := []string{"aa", "aqwewqe", "asdasdsadasd"}
				if len(got) != len(want) {
					t.Fatalf("Keys(a): got %q, want %q", got, want)
				}
				for i := range want {
					if string(got[i]) != want[i] {
						t.Errorf("Keys(a)[%d]: got %q, want %q", i, got[i], want[i])
					}
				}
				return
			}
			gotSorted := sortedStrings(got)
			want := []string{"aa", "aqwewqe", "asdasdsadasd"}
			if fmt.Sprint(gotSorted) != fmt.Sprint(want) {
				t.Errorf("Keys(a): got %q, want %q", gotSorted, want)
			}
			if n := len(st.Keys(nil)); n != 8 {
				t.Errorf("Keys(nil): got %d keys, want 8", n)
			}
		})
	}
}

func TestKeys_PrefixBoundaries(t *testing.T) {
	st := newTestStore(t, 1)
	keys := [][]byte{
		{'a'},
		{'a', 0xff},
		{'a', 0xff, 0x00},
		{'a', 0xff, 0xff},
		{'b'},
		{0xff},
		{0xff, 0x01},
	}
	for _, k := range keys {
		st.Set(k, []byte("v"), 0)
	}

	tests := []struct {
		prefix []byte
		want   [][]byte
	}{
		{[]byte{'a'}, [][]byte{{'a'}, {'a', 0xff}, {'a', 0xff, 0x00}, {'a', 0xff, 0xff}}},
		{[]byte{'a', 0xff}, [][]byte{{'a', 0xff}, {'a', 0xff, 0x00}, {'a', 0xff, 0xff}}},
		{[]byte{'a', 0xff, 0xff}, [][]byte{{'a', 0xff, 0xff}}},
		{[]byte{0xff}, [][]byte{{0xff}, {0xff, 0x01}}},
		{[]byte{'c'}, nil},
	}
	for _, tc := range tests {
		got := st.Keys(tc.prefix)
		if len(got) != len(tc.want) {
			t.Errorf("Keys(%x): got %x, want %x", tc.prefix, got, tc.want)
			continue
		}
		for i := range tc.want {
			if !bytes.Equal(got[i], tc.want[i]) {
				t.Errorf("Keys(%x)[%d]: got %x, want %x", tc.prefix, i, got[i], tc.want[i])
			}
		}
	}
}

func TestSuccessor(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{nil, nil},
		{[]byte{}, nil},
		{[]byte("a"), []byte("b")},
		{[]byte("ab"), []byte("ac")},
		{[]byte{'a', 0xff}, []byte("b")},
		{[]byte{'a', 0xff, 0xff}, []byte("b")},
		{[]byte{0xff}, nil},
		{[]byte{0xff, 0xff}, nil},
		{[]byte{0x01, 0xfe}, []byte{0x01, 0xff}},
	}
	for _, tc := range tests {
		got := successor(tc.in)
		if !bytes.Equal(got, tc.want) || (got == nil) != (tc.want == nil) {
			t.Errorf("successor(%x): got %x, want %x", tc.in, got, tc.want)
		}
	}
}

func TestIter_OrderedWithinShard(t *testing.T) {
	st := newTestStore(t, 4)
	for i := 0; i < 200; i++ {
		st.Set([]byte(fmt.Sprintf("key-%03d", i)), []byte(fmt.Sprint(i)), 0)
	}

	seen := make(map[string]bool)
	lastShard := -1
	var last []byte
	for it := st.Iter(); it.Next(); {
		if it.Shard() < lastShard {
			t.Fatalf("shard index went backwards: %d after %d", it.Shard(), lastShard)
		}
		if it.Shard() == lastShard && bytes.Compare(it.Key(), last) <= 0 {
			t.Fatalf("shard %d: %q not after %q", it.Shard(), it.Key(), last)
		}
		if st.ShardFor(it.Key()) != it.Shard() {
			t.Errorf("%q reported in shard %d, routes to %d", it.Key(), it.Shard(), st.ShardFor(it.Key()))
		}
		lastShard, last = it.Shard(), it.Key()
		seen[string(it.Key())] = true
	}
	if len(seen) != 200 {
		t.Errorf("Iter visited %d keys, want 200", len(seen))
	}
}

func TestIter_Restartable(t *testing.T) {
	st := newTestStore(t, 3)
	for _, k := range []string{"a", "b", "c", "d"} {
		st.Set([]byte(k), []byte(k), 0)
	}
	count := func() int {
		n := 0
		for it := st.Iter(); it.Next(); {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 4 || b != 4 {
		t.Errorf("two scans: got %d and %d entries, want 4 each", a, b)
	}
}

func TestRange_Prefix(t *testing.T) {
	st := newTestStore(t, 1)
	for _, k := range []string{"aa", "aqwewqe", "asdasdsadasd", "sadad", "vasdad", "vlzczxc"} {
		st.Set([]byte(k), []byte("v:"+k), 0)
	}

	var got []string
	for it := st.Range([]byte("a")); it.Next(); {
		got = append(got, string(it.Key()))
		if string(it.Value()) != "v:"+string(it.Key()) {
			t.Errorf("value for %q: got %q", it.Key(), it.Value())
		}
	}
	want := []string{"aa", "aqwewqe", "asdasdsadasd"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Range(a): got %q, want %q", got, want)
	}

	n := 0
	for it := st.Range(nil); it.Next(); {
		n++
	}
	if n != 6 {
		t.Errorf("Range(nil): got %d entries, want 6", n)
	}
}

func TestRange_SeesInsertAheadOfCursor(t *testing.T) {
	st := newTestStore(t, 1)
	st.Set([]byte("a1"), []byte("v"), 0)
	st.Set([]byte("a3"), []byte("v"), 0)

	it := st.Range([]byte("a"))
	if !it.Next() || string(it.Key()) != "a1" {
		t.Fatalf("first Next: got %q", it.Key())
	}
	st.Set([]byte("a2"), []byte("v"), 0)
	if !it.Next() || string(it.Key()) != "a2" {
		t.Fatalf("second Next: got %q, want a2", it.Key())
	}
	if !it.Next() || string(it.Key()) != "a3" {
		t.Fatalf("third Next: got %q, want a3", it.Key())
	}
	if it.Next() {
		t.Errorf("unexpected extra entry %q", it.Key())
	}
}

func TestPublish_NoChannel(t *testing.T) {
	st := newTestStore(t, 2)
	if n := st.Publish([]byte("nobody"), []byte("hello")); n != 0 {
		t.Errorf("Publish without subscribers: got %d, want 0", n)
	}
}

func TestPublish_FanOut(t *testing.T) {
	st := newTestStore(t, 2)
	s1 := st.Subscribe([]byte("news"))
	s2 := st.Subscribe([]byte("news"))

	if n := st.Publish([]byte("news"), []byte("hello")); n != 2 {
		t.Fatalf("Publish: got %d receivers, want 2", n)
	}
	for i, sub := range []*Subscription{s1, s2} {
		select {
		case msg := <-sub.C():
			if string(msg) != "hello" {
				t.Errorf("sub %d: got %q, want hello", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no message", i)
		}
		select {
		case msg := <-sub.C():
			t.Errorf("sub %d: unexpected second message %q", i, msg)
		default:
		}
	}
}

func TestSubscription_Close(t *testing.T) {
	st := newTestStore(t, 2)
	s1 := st.Subscribe([]byte("k"))
	s2 := st.Subscribe([]byte("k"))

	s1.Close()
	s1.Close() // idempotent
	if _, ok := <-s1.C(); ok {
		t.Error("closed subscription channel still open")
	}
	if n := st.Publish([]byte("k"), []byte("m")); n != 1 {
		t.Errorf("Publish after one Close: got %d, want 1", n)
	}

	s2.Close()
	if n := st.Publish([]byte("k"), []byte("m")); n != 0 {
		t.Errorf("Publish after all Close: got %d, want 0", n)
	}
	// The key's channel outlives its subscribers.
	if ch := st.Stats().Total.Channels; ch != 1 {
		t.Errorf("Channels: got %d, want 1", ch)
	}
}

func TestPublish_LaggingSubscriber(t *testing.T) {
	st := newTestStore(t, 1)
	sub := st.Subscribe([]byte("k"))

	for i := 0; i < SubscriberBuffer; i++ {
		if n := st.Publish([]byte("k"), []byte("m")); n != 1 {
			t.Fatalf("Publish %d: got %d, want 1", i, n)
		}
	}
	if n := st.Publish([]byte("k"), []byte("overflow")); n != 0 {
		t.Errorf("Publish into full buffer: got %d, want 0", n)
	}
	if sub.Lagged() != 1 {
		t.Errorf("Lagged: got %d, want 1", sub.Lagged())
	}
}

func TestClose_StopsReapersAndSubscriptions(t *testing.T) {
	st, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	sub := st.Subscribe([]byte("k"))
	st.Set([]byte("k"), []byte("v"), 0)

	done := make(chan struct{})
	go func() {
		st.Close()
		st.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, ok := <-sub.C(); ok {
		t.Error("subscription channel open after Close")
	}
	for _, sh := range st.shards {
		if !sh.isShutdown() {
			t.Errorf("shard %d not shut down", sh.id)
		}
	}
	if v, ok := st.Get([]byte("k")); !ok || string(v) != "v" {
		t.Errorf("Get after Close: got %q, %v", v, ok)
	}
	late := st.Subscribe([]byte("other"))
	if _, ok := <-late.C(); ok {
		t.Error("subscription created after Close is open")
	}
}

func TestStats_Counters(t *testing.T) {
	st := newTestStore(t, 2)
	st.Set([]byte("a"), []byte("1"), time.Hour)
	st.Set([]byte("b"), []byte("2"), 0)
	st.Get([]byte("a"))
	st.Get([]byte("missing"))
	st.Subscribe([]byte("a"))
	st.Publish([]byte("a"), []byte("x"))

	tot := st.Stats().Total
	if tot.Keys != 2 || tot.Expirations != 1 {
		t.Errorf("Keys/Expirations: got %d/%d, want 2/1", tot.Keys, tot.Expirations)
	}
	if tot.Gets != 2 || tot.Hits != 1 || tot.Misses != 1 {
		t.Errorf("Gets/Hits/Misses: got %d/%d/%d, want 2/1/1", tot.Gets, tot.Hits, tot.Misses)
	}
	if tot.Sets != 2 || tot.Publishes != 1 || tot.Deliveries != 1 || tot.Subscribers != 1 {
		t.Errorf("unexpected totals: %+v", tot)
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := newTestStore(t, 8)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i%50))
				st.Set(key, []byte("v"), time.Duration(i%3)*time.Millisecond)
				st.Get(key)
				if i%10 == 0 {
					for it := st.Range([]byte(fmt.Sprintf("w%d-", w))); it.Next(); {
					}
				}
				if i%25 == 0 {
					st.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()
	checkLockstep(t, st)
}

func TestScenario_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real 2s TTL")
	}
	st := newTestStore(t, 10)
	st.Set([]byte("aaa"), []byte("aaaaadascasc"), 2*time.Second)

	v, ok := st.Get([]byte("aaa"))
	if !ok || string(v) != "aaaaadascasc" {
		t.Fatalf("immediate Get: got %q, %v", v, ok)
	}

	if !waitFor(t, 10*time.Second, func() bool { return st.Len() == 0 }) {
		t.Fatal("entry not reaped within 10s")
	}
	if _, ok := st.Get([]byte("aaa")); ok {
		t.Error("Get after expiry: want absent")
	}
}
