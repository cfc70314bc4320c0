package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleSetStore manages rule-document persistence and retrieval.
type RuleSetStore interface {
	// Add a new rule set
	Add(rs *RuleSet) error

	// Get a rule set by ID
	Get(id string) (*RuleSet, error)

	// GetActiveByForm returns the active rule set for a form
	GetActiveByForm(formID string) (*RuleSet, error)

	// ListActive lists all active rule sets
	ListActive() ([]*RuleSet, error)

	// Update an existing rule set
	Update(rs *RuleSet) error

	// Delete a rule set
	Delete(id string) error
}

// InMemoryRuleSetStore implements RuleSetStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleSetStore struct {
	sets map[string]*RuleSet
	mu   sync.RWMutex
}

// NewInMemoryRuleSetStore creates a new in-memory rule set store.
func NewInMemoryRuleSetStore() *InMemoryRuleSetStore {
	return &InMemoryRuleSetStore{
		sets: make(map[string]*RuleSet),
	}
}

// Add stores a new rule set. The document must load cleanly; a store never
// accepts a document the engine would reject.
func (s *InMemoryRuleSetStore) Add(rs *RuleSet) error {
	if _, err := LoadRules(rs.Document); err != nil {
		return fmt.Errorf("invalid rule document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sets[rs.ID]; exists {
		return fmt.Errorf("rule set with ID %s already exists", rs.ID)
	}

	now := time.Now()
	rs.CreatedAt = now
	rs.UpdatedAt = now
	s.sets[rs.ID] = rs
	return nil
}

// Get retrieves a rule set by ID.
func (s *InMemoryRuleSetStore) Get(id string) (*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, exists := s.sets[id]
	if !exists {
		return nil, fmt.Errorf("rule set with ID %s not found", id)
	}
	return rs, nil
}

// GetActiveByForm returns the most recently updated active rule set for the
// form.
func (s *InMemoryRuleSetStore) GetActiveByForm(formID string) (*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *RuleSet
	for _, rs := range s.sets {
		if !rs.Active || rs.FormID != formID {
			continue
		}
		if best == nil || rs.UpdatedAt.After(best.UpdatedAt) ||
			(rs.UpdatedAt.Equal(best.UpdatedAt) && rs.ID < best.ID) {
			best = rs
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no active rule set for form %s", formID)
	}
	return best, nil
}

// ListActive returns all active rule sets, ordered by form then ID so
// callers see a stable listing.
func (s *InMemoryRuleSetStore) ListActive() ([]*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*RuleSet
	for _, rs := range s.sets {
		if rs.Active {
			active = append(active, rs)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].FormID != active[j].FormID {
			return active[i].FormID < active[j].FormID
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

// Update replaces an existing rule set, preserving CreatedAt.
func (s *InMemoryRuleSetStore) Update(rs *RuleSet) error {
	if _, err := LoadRules(rs.Document); err != nil {
		return fmt.Errorf("invalid rule document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sets[rs.ID]
	if !exists {
		return fmt.Errorf("rule set with ID %s not found", rs.ID)
	}

	rs.CreatedAt = existing.CreatedAt
	rs.UpdatedAt = time.Now()
	s.sets[rs.ID] = rs
	return nil
}

// Delete removes a rule set.
func (s *InMemoryRuleSetStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sets[id]; !exists {
		return fmt.Errorf("rule set with ID %s not found", id)
	}

	delete(s.sets, id)
	return nil
}
