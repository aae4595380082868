package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const defaultMaxRetries = 3

// Store manages the dead-letter queue: capturing failed notifications,
// deciding retry eligibility with backoff, and keeping aggregate
// statistics. Safe for concurrent use.
type Store struct {
	storage Storage
	backoff BackoffStrategy
	log     *slog.Logger
	clock   func() time.Time

	mu    sync.Mutex
	stats Statistics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStorage sets the record storage backend. Defaults to in-memory.
func WithStorage(storage Storage) StoreOption {
	return func(s *Store) {
		if storage != nil {
			s.storage = storage
		}
	}
}

// WithBackoffStrategy overrides the retry backoff schedule.
func WithBackoffStrategy(strategy BackoffStrategy) StoreOption {
	return func(s *Store) {
		if strategy != nil {
			s.backoff = strategy
		}
	}
}

// WithStoreLogger sets the logger for dead-letter events.
func WithStoreLogger(log *slog.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStoreClock overrides the time source. Intended for tests.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a dead-letter store with in-memory storage and the
// default exponential backoff unless overridden by options.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		storage: NewMemoryStorage(),
		backoff: DefaultBackoffStrategy(),
		log:     slog.Default(),
		clock:   time.Now,
		stats:   Statistics{FailuresByReason: make(map[string]int64)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFailed captures a notification that exhausted normal delivery.
// MaxRetries defaults to 3 when unset; FailedAt defaults to now.
// Re-adding an existing id replaces the record but counts as a new failure.
func (s *Store) AddFailed(ctx context.Context, rec FailedNotification) error {
	if rec.OriginalNotificationID == "" {
		rec.OriginalNotificationID = rec.OriginalNotification.ID
	}
	if rec.OriginalNotificationID == "" {
		return ErrMissingNotificationID
	}
	if rec.TenantID == "" {
		rec.TenantID = rec.OriginalNotification.TenantID
	}
	if rec.MaxRetries <= 0 {
		rec.MaxRetries = defaultMaxRetries
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = s.clock()
	}

	if err := s.storage.Save(ctx, rec); err != nil {
		return fmt.Errorf("save dead-letter record: %w", err)
	}

	s.mu.Lock()
	s.stats.TotalFailed++
	if rec.FailureReason != "" {
		s.stats.FailuresByReason[rec.FailureReason]++
	}
	s.mu.Unlock()

	s.log.WarnContext(ctx, "notification dead-lettered",
		logger.NotificationID(rec.OriginalNotificationID),
		logger.TenantID(rec.TenantID),
		slog.String("reason", rec.FailureReason),
	)
	return nil
}

// Retry checks whether the record may be retried. If the retry budget is
// exhausted the record is marked permanently failed and the decision is
// not retryable. Otherwise the retry count is incremented and the next
// retry time is computed from the backoff strategy.
func (s *Store) Retry(ctx context.Context, notificationID string) (RetryDecision, error) {
	rec, err := s.storage.Get(ctx, notificationID)
	if err != nil {
		return RetryDecision{}, err
	}

	if rec.RetryCount >= rec.MaxRetries {
		s.mu.Lock()
		s.stats.PermanentlyFailed++
		s.mu.Unlock()

		s.log.ErrorContext(ctx, "dead-letter retry budget exhausted",
			logger.NotificationID(notificationID),
			logger.RetryCount(rec.RetryCount),
		)
		return RetryDecision{
			Retryable:  false,
			RetryCount: rec.RetryCount,
			Reason:     "max retries exceeded",
		}, nil
	}

	rec.RetryCount++
	next := s.clock().Add(s.backoff.NextInterval(rec.RetryCount))
	rec.NextRetryAt = &next

	if err := s.storage.Save(ctx, rec); err != nil {
		return RetryDecision{}, fmt.Errorf("save dead-letter record: %w", err)
	}

	s.mu.Lock()
	s.stats.TotalRetried++
	s.mu.Unlock()

	s.log.InfoContext(ctx, "dead-letter retry scheduled",
		logger.NotificationID(notificationID),
		logger.RetryCount(rec.RetryCount),
		slog.Time("next_retry_at", next),
	)
	return RetryDecision{
		Retryable:   true,
		RetryCount:  rec.RetryCount,
		NextRetryAt: next,
	}, nil
}

// Get retrieves a single dead-letter record.
func (s *Store) Get(ctx context.Context, notificationID string) (FailedNotification, error) {
	return s.storage.Get(ctx, notificationID)
}

// List returns all dead-letter records.
func (s *Store) List(ctx context.Context) ([]FailedNotification, error) {
	return s.storage.List(ctx)
}

// ListDue returns records whose next retry time has arrived and that
// still have retry budget left.
func (s *Store) ListDue(ctx context.Context) ([]FailedNotification, error) {
	all, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	due := make([]FailedNotification, 0, len(all))
	for _, rec := range all {
		if rec.RetryCount >= rec.MaxRetries {
			continue
		}
		if rec.NextRetryAt != nil && rec.NextRetryAt.After(now) {
			continue
		}
		due = append(due, rec)
	}
	return due, nil
}

// Remove deletes a record, typically after a successful retry.
func (s *Store) Remove(ctx context.Context, notificationID string) error {
	return s.storage.Delete(ctx, notificationID)
}

// Purge deletes every record and resets the statistics counters.
func (s *Store) Purge(ctx context.Context) error {
	if err := s.storage.DeleteAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats = Statistics{FailuresByReason: make(map[string]int64)}
	s.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the aggregate failure counters.
func (s *Store) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.stats
	snapshot.FailuresByReason = make(map[string]int64, len(s.stats.FailuresByReason))
	for reason, count := range s.stats.FailuresByReason {
		snapshot.FailuresByReason[reason] = count
	}
	return snapshot
}

// Capture is a convenience for recording a delivery failure straight from
// a notification and error.
func (s *Store) Capture(ctx context.Context, n notification.Notification, reason string, cause error) error {
	rec := FailedNotification{
		OriginalNotificationID: n.ID,
		TenantID:               n.TenantID,
		OriginalNotification:   n,
		FailureReason:          reason,
	}
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}
	if n.DeliveryOptions.MaxAttempts > 0 {
		rec.MaxRetries = n.DeliveryOptions.MaxAttempts
	}
	return s.AddFailed(ctx, rec)
}
