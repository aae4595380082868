package deadletter

import (
	"context"
	"sync"
)

// Storage persists dead-letter records. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Save stores or replaces a record keyed by its original notification id.
	Save(ctx context.Context, rec FailedNotification) error

	// Get retrieves a single record.
	Get(ctx context.Context, notificationID string) (FailedNotification, error)

	// Delete removes a record.
	Delete(ctx context.Context, notificationID string) error

	// List returns all records.
	List(ctx context.Context) ([]FailedNotification, error)

	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
}

// MemoryStorage is an in-memory Storage implementation. Suitable for
// development, testing, and in-process deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]FailedNotification
}

// NewMemoryStorage creates an empty in-memory dead-letter storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]FailedNotification)}
}

func (s *MemoryStorage) Save(ctx context.Context, rec FailedNotification) error {
	if rec.OriginalNotificationID == "" {
		return ErrMissingNotificationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.OriginalNotification = rec.OriginalNotification.Clone()
	s.records[rec.OriginalNotificationID] = rec
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, notificationID string) (FailedNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[notificationID]
	if !ok {
		return FailedNotification{}, ErrNotFound
	}
	rec.OriginalNotification = rec.OriginalNotification.Clone()
	return rec, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[notificationID]; !ok {
		return ErrNotFound
	}
	delete(s.records, notificationID)
	return nil
}

func (s *MemoryStorage) List(ctx context.Context) ([]FailedNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FailedNotification, 0, len(s.records))
	for _, rec := range s.records {
		rec.OriginalNotification = rec.OriginalNotification.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStorage) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]FailedNotification)
	return nil
}
