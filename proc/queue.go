package proc

import (
	"math/rand"
	"sync"
)

// TrackQueue is the ordered per-session store of pending tracks plus the
// currently playing one. Selection is FIFO unless shuffle is enabled, in
// which case the fair-shuffle policy applies.
type TrackQueue struct {
	mu      sync.Mutex
	pending []*Track
	current *Track
	shuffle bool
}

func NewTrackQueue() *TrackQueue {
	return &TrackQueue{}
}

// Add appends a track and returns its zero-based position (0 = next to play).
func (q *TrackQueue) Add(t *Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
	return len(q.pending) - 1
}

// Next removes and returns the next track to play, or nil when the queue is
// empty. Fair shuffle prefers tracks whose requester differs from the track
// that just finished; only when every pending track shares that requester
// does it fall back to a uniform pick.
func (q *TrackQueue) Next() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.current = nil
		return nil
	}

	idx := 0
	if q.shuffle {
		idx = q.fairPickLocked()
	}

	t := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	q.current = t
	return t
}

// fairPickLocked implements the anti-starvation heuristic: avoid a
// back-to-back track from the previous requester when any alternative
// exists. It only avoids immediate repetition, nothing stronger.
func (q *TrackQueue) fairPickLocked() int {
	prev := ""
	if q.current != nil {
		prev = q.current.RequestedBy
	}

	var others []int
	for i, t := range q.pending {
		if t.RequestedBy != prev {
			others = append(others, i)
		}
	}
	if len(others) > 0 {
		return others[rand.Intn(len(others))]
	}
	return rand.Intn(len(q.pending))
}

// Clear empties the pending list. The now-playing track is untouched.
func (q *TrackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}

// List returns a snapshot of the pending tracks, excluding current.
func (q *TrackQueue) List() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Track, len(q.pending))
	copy(out, q.pending)
	return out
}

func (q *TrackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *TrackQueue) Current() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *TrackQueue) SetShuffle(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffle = enabled
}

func (q *TrackQueue) Shuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffle
}

// ToggleShuffle flips shuffle mode and returns the new state.
func (q *TrackQueue) ToggleShuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffle = !q.shuffle
	return q.shuffle
}

// resetCurrent is called by the controller on stop so a stale now-playing
// entry does not survive the session.
func (q *TrackQueue) resetCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
}
