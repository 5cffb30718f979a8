package store

import (
	"log/slog"
	"time"
)

// reap is the shard's background expiration loop. It sweeps expired entries,
// then sleeps until the next deadline or a wake signal, whichever comes
// first. The true next deadline is re-read after every wake, so a dropped or
// coalesced wake only delays a purge until the timer fires.
//
// reap returns once the shard's shutdown flag is set.
func (s *shard) reap() {
	defer close(s.done)

	for {
		before := s.ops.reaped.Load()
		next, pending, stopped := s.sweep()
		if stopped {
			slog.Debug("store: reaper stopped", "shard", s.id)
			return
		}
		if n := s.ops.reaped.Load() - before; n > 0 {
			slog.Debug("store: reaped expired keys", "shard", s.id, "count", n)
		}

		if !pending {
			<-s.wake
			continue
		}

		t := time.NewTimer(next.Sub(s.now()))
		select {
		case <-t.C:
		case <-s.wake:
			t.Stop()
		}
	}
}

// stop sets the shutdown flag, wakes the reaper and waits for it to exit.
// It returns the shard's subscriber channels so the caller can close them.
func (s *shard) stop() []*broadcaster {
	s.mu.Lock()
	s.state.shutdown = true
	out := make([]*broadcaster, 0, len(s.state.subscribers))
	for _, b := range s.state.subscribers {
		out = append(out, b)
	}
	s.mu.Unlock()

	s.notify()
	<-s.done
	return out
}
