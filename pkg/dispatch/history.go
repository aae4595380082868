package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// HistoryStore is the append-only delivery attempt log, keyed by
// notification id. Readers reconstruct ordering from AttemptedAt, not
// insertion order. Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append records delivery attempts for a notification.
	Append(ctx context.Context, notificationID string, attempts ...notification.DeliveryAttempt) error

	// List returns the notification's attempts ordered by AttemptedAt
	// ascending. An unknown id yields an empty list, not an error:
	// missing history means "not yet recorded".
	List(ctx context.Context, notificationID string) ([]notification.DeliveryAttempt, error)
}

// MemoryHistoryStore is an in-memory HistoryStore.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	attempts map[string][]notification.DeliveryAttempt
}

// NewMemoryHistoryStore creates an empty in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{attempts: make(map[string][]notification.DeliveryAttempt)}
}

func (s *MemoryHistoryStore) Append(ctx context.Context, notificationID string, attempts ...notification.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, attempt := range attempts {
		attempt.NotificationID = notificationID
		s.attempts[notificationID] = append(s.attempts[notificationID], attempt)
	}
	return nil
}

func (s *MemoryHistoryStore) List(ctx context.Context, notificationID string) ([]notification.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.attempts[notificationID]
	out := append([]notification.DeliveryAttempt(nil), stored...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptedAt.Before(out[j].AttemptedAt)
	})
	return out, nil
}
