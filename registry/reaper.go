package registry

import (
	"context"
	"time"
)

// CleanupIdle evicts every session whose idle duration exceeds ttl and
// returns the number evicted. A non-positive ttl evicts all idle sessions.
// Running sessions are skipped; Evict re-checks state under the lock, so a
// session that starts a run between the snapshot and the eviction survives.
func (r *Registry) CleanupIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var stale []string
	for key, ent := range r.entries {
		if ent.state != StateIdle {
			continue
		}
		if ttl <= 0 || ent.lastActivity.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	r.mu.Unlock()

	evicted := 0
	for _, key := range stale {
		if r.Evict(key) {
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info("reaper swept idle sessions", "evicted", evicted)
	}

	return evicted
}

// StartReaper runs a periodic idle sweep until ctx is cancelled. With a
// non-positive interval or ttl the reaper is disabled and sessions live for
// the process lifetime unless cleaned up on demand.
func (r *Registry) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupIdle(ttl)
			}
		}
	}()
}
