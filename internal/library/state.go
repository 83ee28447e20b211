package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"intizar/internal/models"
)

// Source lists the remote catalog. *client.Client satisfies it.
type Source interface {
	Documents(ctx context.Context) ([]models.Document, error)
}

// Stats are the numbers shown above the library.
type Stats struct {
	Total  int
	Recent int
}

// State owns everything the library view renders: the merged entries, the
// current filters, and the outcome of the last load.
type State struct {
	mu       sync.RWMutex
	fallback []Entry
	entries  []Entry
	remote   int
	filters  FilterState
	loadErr  error
	loadedAt time.Time
	now      func() time.Time
}

// NewState starts with the fallback entries only.
func NewState(fallback []Entry) *State {
	fb := asFallback(fallback)
	return &State{
		fallback: fb,
		entries:  append([]Entry(nil), fb...),
		filters:  DefaultFilters(),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for recency.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load fetches the remote catalog and rebuilds the entry list as remote
// entries followed by the fallback. On failure the list holds the fallback
// only and the error is returned so the caller can offer a retry.
func (s *State) Load(ctx context.Context, src Source) error {
	docs, err := src.Documents(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = s.now()
	s.loadErr = err
	if err != nil {
		slog.Warn("load library failed", "error", err)
		s.entries = append([]Entry(nil), s.fallback...)
		s.remote = 0
		return err
	}

	entries := make([]Entry, 0, len(docs)+len(s.fallback))
	for _, doc := range docs {
		entries = append(entries, FromDocument(doc, s.loadedAt))
	}
	s.remote = len(entries)
	s.entries = append(entries, s.fallback...)
	return nil
}

// Entries returns the unfiltered merged list.
func (s *State) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// LastError is the error of the most recent load, if any.
func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *State) Filters() FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func (s *State) SetFilters(fs FilterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = fs
}

// SetSearch changes only the search term.
func (s *State) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Search = term
}

// View is the filtered, sorted list for the current filters.
func (s *State) View() []Entry {
	s.mu.RLock()
	entries, fs := s.entries, s.filters
	s.mu.RUnlock()
	return ApplyFilters(entries, fs)
}

// Stats counts remote plus fallback entries, and remote entries added within
// the last month.
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: s.remote + len(s.fallback)}
	for _, e := range s.entries[:s.remote] {
		if e.Recent {
			st.Recent++
		}
	}
	return st
}

// Featured returns up to n remote entries in catalog order.
func (s *State) Featured(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.remote {
		n = s.remote
	}
	if n <= 0 {
		return nil
	}
	return append([]Entry(nil), s.entries[:n]...)
}
