package reference

import (
	"sync"

	"github.com/betbot/crossarb/internal/domain"
)

// Store holds one frozen price-to-beat per market window. First write wins:
// a captured reference never changes for the life of the window, and a
// window marked unavailable stays unavailable.
type Store struct {
	mu          sync.RWMutex
	captured    map[string]domain.PriceToBeat
	unavailable map[string]bool
}

func NewStore() *Store {
	return &Store{
		captured:    make(map[string]domain.PriceToBeat),
		unavailable: make(map[string]bool),
	}
}

// Put records the reference for a market slug. Returns false if the slug
// already has a reference or was marked unavailable.
func (s *Store) Put(ref domain.PriceToBeat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable[ref.MarketSlug] {
		return false
	}
	if _, exists := s.captured[ref.MarketSlug]; exists {
		return false
	}
	s.captured[ref.MarketSlug] = ref
	return true
}

func (s *Store) Get(marketSlug string) (domain.PriceToBeat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.captured[marketSlug]
	return ref, ok
}

// MarkUnavailable freezes the window as non-tradeable. A no-op when a
// reference was already captured.
func (s *Store) MarkUnavailable(marketSlug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.captured[marketSlug]; exists {
		return
	}
	s.unavailable[marketSlug] = true
}

func (s *Store) Unavailable(marketSlug string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable[marketSlug]
}

// Forget drops all state for a slug. Called when a window expires so the
// store does not grow without bound.
func (s *Store) Forget(marketSlug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.captured, marketSlug)
	delete(s.unavailable, marketSlug)
}
