package simm

import (
	"fmt"
	"sync"
	"time"
)

// memoKey identifies one coordinate group at one evaluation time.
type memoKey struct {
	evaluation int64
	group      string
}

// memoEntry is a cached bucket together with the floor events its aggregation
// raised, so a hit reports the same data-quality signals as a miss.
type memoEntry struct {
	result BucketResult
	floors []FloorEvent
}

// Memo caches bucket results keyed by (evaluation time, coordinate group).
// It holds a single binding of evaluation time and gradient fingerprint.
// Binding anything else drops every entry and starts a new generation;
// sessions of an older generation neither read nor write the table.
type Memo struct {
	mu          sync.RWMutex
	bound       bool
	evaluation  int64
	fingerprint string
	generation  uint64
	buckets     map[memoKey]memoEntry
	hits        int
	misses      int
}

// NewMemo creates an empty memoization table.
func NewMemo() *Memo {
	return &Memo{buckets: make(map[memoKey]memoEntry)}
}

// memoSession is one computation's view of a Memo. A nil session caches
// nothing.
type memoSession struct {
	memo       *Memo
	generation uint64
	evaluation int64
}

// session binds the gradient fingerprint at t and returns the view to use for
// the computation. It reports whether cached entries were dropped.
func (m *Memo) session(t time.Time, fingerprint string) (*memoSession, bool) {
	if m == nil {
		return nil, false
	}
	key := t.UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bound && m.evaluation == key && m.fingerprint == fingerprint {
		return &memoSession{memo: m, generation: m.generation, evaluation: key}, false
	}
	invalidated := len(m.buckets) > 0
	m.generation++
	m.bound = true
	m.evaluation = key
	m.fingerprint = fingerprint
	m.buckets = make(map[memoKey]memoEntry)
	return &memoSession{memo: m, generation: m.generation, evaluation: key}, invalidated
}

// Invalidate drops every entry and the current binding.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	m.generation++
	m.bound = false
	m.fingerprint = ""
	m.buckets = make(map[memoKey]memoEntry)
	m.mu.Unlock()
}

// Len returns the number of cached bucket results.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

// Stats returns hit and miss counts since creation.
func (m *Memo) Stats() (hits, misses int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.misses
}

func (s *memoSession) get(group string) (memoEntry, bool) {
	if s == nil {
		return memoEntry{}, false
	}
	m := s.memo
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		e  memoEntry
		ok bool
	)
	if s.generation == m.generation {
		e, ok = m.buckets[memoKey{evaluation: s.evaluation, group: group}]
	}
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return e, ok
}

func (s *memoSession) put(group string, e memoEntry) {
	if s == nil {
		return
	}
	m := s.memo
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.generation != m.generation {
		return
	}
	m.buckets[memoKey{evaluation: s.evaluation, group: group}] = e
}

func groupKey(pc ProductClass, rc RiskClass, mt MarginType, bucket string) string {
	return fmt.Sprintf("%s|%s|%s|%s", pc, rc, mt, bucket)
}
