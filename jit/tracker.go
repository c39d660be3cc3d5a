package jit

import (
	"sort"
)

// entryStatus is the compilation state of one tracked function.
type entryStatus uint8

const (
	statusUntried  entryStatus = iota // eligible for promotion
	statusCompiled                    // native artifact resident in the cache
	statusDeclined                    // translation failed; never retried
)

func (s entryStatus) String() string {
	switch s {
	case statusUntried:
		return "untried"
	case statusCompiled:
		return "compiled"
	case statusDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// HotspotEntry is the per-function record kept by the tracker.
type HotspotEntry struct {
	Offset    uint32 // function start offset, the identity key
	Name      string
	CallCount uint64
	Status    entryStatus
}

// Tracker counts function invocations and decides when a function has
// crossed the promotion threshold. It holds no locks of its own; the
// engine serializes access.
type Tracker struct {
	threshold uint64
	entries   map[uint32]*HotspotEntry
}

// NewTracker creates a tracker. A threshold of n means the n-th recorded
// call of an untried function triggers promotion.
func NewTracker(threshold uint64) *Tracker {
	if threshold == 0 {
		threshold = 1
	}
	return &Tracker{
		threshold: threshold,
		entries:   make(map[uint32]*HotspotEntry),
	}
}

// RecordCall bumps the call counter for the function starting at offset
// and reports whether the function now qualifies for promotion: the entry
// is untried and its counter is at or past the threshold. The engine
// settles a qualifying entry immediately (compiled, declined, or demoted
// to zero on a capacity rejection), so in practice this fires once per
// untried episode. An evicted function keeps its counter and re-qualifies
// on its next call. Compiled and declined entries keep counting but never
// trigger.
func (t *Tracker) RecordCall(offset uint32, name string) bool {
	e := t.entries[offset]
	if e == nil {
		e = &HotspotEntry{Offset: offset, Name: name}
		t.entries[offset] = e
	}
	e.CallCount++
	return e.Status == statusUntried && e.CallCount >= t.threshold
}

// Lookup returns a copy of the entry for offset, if one exists.
func (t *Tracker) Lookup(offset uint32) (HotspotEntry, bool) {
	e := t.entries[offset]
	if e == nil {
		return HotspotEntry{}, false
	}
	return *e, true
}

// MarkCompiled records that offset now has a resident native artifact.
func (t *Tracker) MarkCompiled(offset uint32) {
	if e := t.entries[offset]; e != nil {
		e.Status = statusCompiled
	}
}

// MarkDeclined permanently bars offset from future compilation attempts.
// Declined entries survive cache churn; only Reset clears them.
func (t *Tracker) MarkDeclined(offset uint32) {
	if e := t.entries[offset]; e != nil {
		e.Status = statusDeclined
	}
}

// ResetEntry returns a compiled entry to untried, keeping its call count.
// The cache calls this on eviction: losing an artifact to capacity
// pressure is not a verdict on the function, and a function that already
// proved itself hot re-qualifies on its next recorded call rather than
// re-earning the whole threshold. Declined entries are left alone.
func (t *Tracker) ResetEntry(offset uint32) {
	e := t.entries[offset]
	if e == nil || e.Status == statusDeclined {
		return
	}
	e.Status = statusUntried
}

// Demote zeroes the call counter of an untried entry without touching its
// status. The engine uses it when an artifact compiled fine but was too
// large for the cache: the function stays eligible, but must re-earn the
// threshold before the engine tries again.
func (t *Tracker) Demote(offset uint32) {
	if e := t.entries[offset]; e != nil && e.Status == statusUntried {
		e.CallCount = 0
	}
}

// Len returns the number of tracked functions.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Reset discards all tracking state, including declined verdicts.
func (t *Tracker) Reset() {
	t.entries = make(map[uint32]*HotspotEntry)
}

// Pending returns the untried entries at or past the threshold, ordered
// by call count descending, ties broken by ascending offset. The engine
// compiles synchronously as soon as an entry qualifies, so in steady
// state this is empty; it is non-empty while the tier is disabled or
// between an eviction and the evicted function's next call, and an
// embedder can use it to drive batch compilation.
func (t *Tracker) Pending() []HotspotEntry {
	var out []HotspotEntry
	for _, e := range t.entries {
		if e.Status == statusUntried && e.CallCount >= t.threshold {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallCount != out[j].CallCount {
			return out[i].CallCount > out[j].CallCount
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// Hottest returns up to n entries ordered by call count descending, ties
// broken by ascending offset so the order is deterministic.
func (t *Tracker) Hottest(n int) []HotspotEntry {
	out := make([]HotspotEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallCount != out[j].CallCount {
			return out[i].CallCount > out[j].CallCount
		}
		return out[i].Offset < out[j].Offset
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
