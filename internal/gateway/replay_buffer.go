package gateway

import "sync"

// replayEntry is one envelope kept for backfill.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel in a ring.
// Sequence numbers are pushed in increasing order.
type ReplayBuffer struct {
	mu    sync.RWMutex
	ring  []replayEntry
	start int // oldest entry
	n     int
}

// NewReplayBuffer creates a replay buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayPerChan
	}
	return &ReplayBuffer{ring: make([]replayEntry, capacity)}
}

// Push stores a copy of data, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.n < len(rb.ring) {
		rb.ring[(rb.start+rb.n)%len(rb.ring)] = replayEntry{Seq: seq, Data: cp}
		rb.n++
		return
	}
	rb.ring[rb.start] = replayEntry{Seq: seq, Data: cp}
	rb.start = (rb.start + 1) % len(rb.ring)
}

// Range returns entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i := 0; i < rb.n; i++ {
		e := rb.ring[(rb.start+i)%len(rb.ring)]
		if e.Seq > toSeq {
			break
		}
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// Oldest returns the smallest retained sequence number.
func (rb *ReplayBuffer) Oldest() (int64, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return 0, false
	}
	return rb.ring[rb.start].Seq, true
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}
