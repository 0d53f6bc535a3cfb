package querystate

import (
	"net/url"
	"slices"
	"sync"
)

// Store holds the in-memory state of a list view and reconciles it with the
// URL. Mutations of perPage, sort and filters return to page 1.
type Store struct {
	mu       sync.Mutex
	state    State
	urlState State
}

// NewStore seeds a store from URL values.
func NewStore(v url.Values) *Store {
	s := FromValues(v)
	return &Store{state: s, urlState: s}
}

// State returns a copy of the in-memory state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.state)
}

func (s *Store) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Page = page
}

func (s *Store) SetPerPage(perPage int) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PerPage = perPage
	s.state.Page = 1
}

func (s *Store) SetSort(sort Sort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sort = &sort
	s.state.Page = 1
}

func (s *Store) SetFilters(filters []Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Filters = append([]Filter{}, filters...)
	s.state.Page = 1
}

// AddFilter appends f to the current filters.
func (s *Store) AddFilter(f Filter) {
	cur := s.State().Filters
	s.SetFilters(append(cur, f))
}

// RemoveFilter drops every filter equal to f.
func (s *Store) RemoveFilter(f Filter) {
	cur := s.State().Filters
	s.SetFilters(slices.DeleteFunc(cur, func(x Filter) bool { return x == f }))
}

// SyncFromURL adopts the URL's state when it differs from memory and reports
// whether memory changed.
func (s *Store) SyncFromURL(v url.Values) bool {
	incoming := FromValues(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urlState = incoming
	if Equal(s.state, incoming) {
		return false
	}
	s.state = clone(incoming)
	return true
}

// URLValues returns the query values mirroring memory and whether they differ
// from what the URL last carried.
func (s *Store) URLValues() (url.Values, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if Equal(s.state, s.urlState) {
		return s.urlState.Values(), false
	}
	s.urlState = clone(s.state)
	return s.state.Values(), true
}

func clone(st State) State {
	out := st
	if st.Sort != nil {
		srt := *st.Sort
		out.Sort = &srt
	}
	out.Filters = append([]Filter{}, st.Filters...)
	return out
}
