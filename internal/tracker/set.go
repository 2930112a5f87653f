package tracker

import (
	"sort"
	"sync"

	"MarketRelay/internal/model"
)

// Set holds the trackers of every instrument the relay follows.
type Set struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

func NewSet() *Set {
	return &Set{trackers: make(map[string]*Tracker)}
}

// Add stores t, closing any tracker it replaces.
func (s *Set) Add(t *Tracker) {
	s.mu.Lock()
	old := s.trackers[t.Symbol()]
	s.trackers[t.Symbol()] = t
	s.mu.Unlock()
	if old != nil && old != t {
		old.Close()
	}
}

func (s *Set) Get(symbol string) (*Tracker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trackers[symbol]
	return t, ok
}

// Snapshots returns a copy of every tracked state ordered by symbol.
func (s *Set) Snapshots() []model.InstrumentState {
	s.mu.RLock()
	list := make([]*Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		list = append(list, t)
	}
	s.mu.RUnlock()

	out := make([]model.InstrumentState, 0, len(list))
	for _, t := range list {
		out = append(out, t.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Close closes and forgets every tracker.
func (s *Set) Close() {
	s.mu.Lock()
	list := s.trackers
	s.trackers = make(map[string]*Tracker)
	s.mu.Unlock()
	for _, t := range list {
		t.Close()
	}
}
