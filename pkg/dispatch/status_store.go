package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// StatusStore tracks the live processing record per notification id.
// Implementations must be safe for concurrent use.
type StatusStore interface {
	// Create initializes a status record, replacing any existing one.
	Create(ctx context.Context, status notification.Status) error

	// Get retrieves the status for the id.
	Get(ctx context.Context, notificationID string) (notification.Status, error)

	// Update applies fn to the stored record atomically. fn receives the
	// current value and mutates it in place.
	Update(ctx context.Context, notificationID string, fn func(*notification.Status)) (notification.Status, error)

	// List returns all status records.
	List(ctx context.Context) ([]notification.Status, error)
}

// MemoryStatusStore is an in-memory StatusStore.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]notification.Status
	clock    func() time.Time
}

// NewMemoryStatusStore creates an empty in-memory status store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{
		statuses: make(map[string]notification.Status),
		clock:    time.Now,
	}
}

func (s *MemoryStatusStore) Create(ctx context.Context, status notification.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.LastUpdatedAt = now
	s.statuses[status.NotificationID] = status
	return nil
}

func (s *MemoryStatusStore) Get(ctx context.Context, notificationID string) (notification.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[notificationID]
	if !ok {
		return notification.Status{}, ErrStatusNotFound
	}
	return status, nil
}

func (s *MemoryStatusStore) Update(ctx context.Context, notificationID string, fn func(*notification.Status)) (notification.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[notificationID]
	if !ok {
		return notification.Status{}, ErrStatusNotFound
	}
	fn(&status)
	status.LastUpdatedAt = s.clock()
	s.statuses[notificationID] = status
	return status, nil
}

func (s *MemoryStatusStore) List(ctx context.Context) ([]notification.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Status, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, status)
	}
	return out, nil
}
