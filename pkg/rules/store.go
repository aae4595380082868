package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists tenant-scoped rules. Implementations must be safe for
// concurrent use: one writer at a time per record, reads served from
// snapshots. List returns rules in insertion order; the engine applies
// priority ordering itself.
type Store interface {
	// Create stores a new rule, assigning an id when empty and setting
	// Version to 1.
	Create(ctx context.Context, rule Rule) (Rule, error)

	// Update replaces an existing rule, incrementing Version.
	Update(ctx context.Context, rule Rule) (Rule, error)

	// Delete removes a rule.
	Delete(ctx context.Context, tenantID, ruleID string) error

	// Get retrieves a single rule.
	Get(ctx context.Context, tenantID, ruleID string) (Rule, error)

	// List returns all rules for a tenant in insertion order.
	List(ctx context.Context, tenantID string) ([]Rule, error)
}

// MemoryStore is an in-memory Store implementation guarded by a single
// mutation lock. Suitable for development, testing, and in-process use.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]map[string]Rule // tenantID -> ruleID -> rule
	order map[string][]string        // tenantID -> ruleIDs in insertion order
	clock func() time.Time
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules: make(map[string]map[string]Rule),
		order: make(map[string][]string),
		clock: time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.rules[rule.TenantID]
	if !ok {
		tenant = make(map[string]Rule)
		s.rules[rule.TenantID] = tenant
	}
	if _, exists := tenant[rule.ID]; exists {
		return Rule{}, ErrRuleExists
	}

	now := s.clock()
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now

	tenant[rule.ID] = rule.Clone()
	s.order[rule.TenantID] = append(s.order[rule.TenantID], rule.ID)
	return rule, nil
}

func (s *MemoryStore) Update(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.rules[rule.TenantID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	existing, ok := tenant[rule.ID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}

	rule.Version = existing.Version + 1
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.clock()

	tenant[rule.ID] = rule.Clone()
	return rule, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.rules[tenantID]
	if !ok {
		return ErrRuleNotFound
	}
	if _, exists := tenant[ruleID]; !exists {
		return ErrRuleNotFound
	}
	delete(tenant, ruleID)

	ids := s.order[tenantID]
	for i, id := range ids {
		if id == ruleID {
			s.order[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, ruleID string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.rules[tenantID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	rule, ok := tenant[ruleID]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[tenantID]
	out := make([]Rule, 0, len(ids))
	tenant := s.rules[tenantID]
	for _, id := range ids {
		if rule, ok := tenant[id]; ok {
			out = append(out, rule.Clone())
		}
	}
	return out, nil
}
