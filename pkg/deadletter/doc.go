// Package deadletter captures notifications that exhausted normal delivery
// and manages their retry lifecycle with exponential backoff.
//
// The package is organised around three components:
//
//   - FailedNotification — an immutable snapshot of the failed notification
//     plus failure context (reason, error message, retry counters)
//   - Storage            — a small persistence interface with in-memory and
//     Redis implementations
//   - Store              — the manager: records failures, decides retry
//     eligibility, and keeps aggregate statistics
//
// # Architecture
//
//  1. Records are keyed by the original notification id; re-adding a record
//     replaces the snapshot but still counts as a new failure.
//  2. Retry eligibility is budget-based: once RetryCount reaches MaxRetries
//     the record is permanently failed and further Retry calls refuse it.
//  3. The wait before each retry comes from a pluggable BackoffStrategy;
//     the default doubles from two minutes (2m, 4m, 8m, ...) capped at a day.
//  4. Statistics are aggregate counters (total failed, retried, permanently
//     failed, failures by reason); Purge clears both records and counters.
//
// # Usage
//
//	store := deadletter.NewStore()
//
//	_ = store.Capture(ctx, n, "delivery_failed", err)
//
//	decision, _ := store.Retry(ctx, n.ID)
//	if decision.Retryable {
//	    // re-dispatch at decision.NextRetryAt
//	}
//
// Redis-backed storage:
//
//	cfg, _ := config.Load[deadletter.RedisConfig]()
//	storage, _ := deadletter.ConnectRedisStorage(ctx, cfg)
//	store := deadletter.NewStore(deadletter.WithStorage(storage))
package deadletter
