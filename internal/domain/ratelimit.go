package domain

import (
	"sync"
	"time"
)

// CallWindow is a sliding-window call counter: an ordered sequence of
// call timestamps, oldest first. It is advisory bookkeeping; the caller
// compares the returned count against its configured maximum and decides
// whether to reject.
type CallWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// CheckAndRecord evicts timestamps older than window, then records now if
// the remaining count is below maxCalls. It returns the count inside the
// window after the (possible) append and whether the attempt was
// recorded; recorded == false means the window was already full and the
// caller should reject.
func (w *CallWindow) CheckAndRecord(now time.Time, maxCalls int, window time.Duration) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Stamps are appended in non-decreasing order, so eviction is a
	// prefix trim.
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	recorded := false
	if len(w.stamps) < maxCalls {
		w.stamps = append(w.stamps, now)
		recorded = true
	}
	return len(w.stamps), recorded
}

// Len reports the number of retained timestamps without evicting.
func (w *CallWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stamps)
}
