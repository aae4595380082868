package deadletter

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// FailedNotification is a dead-letter record: a notification that
// exhausted normal delivery, snapshotted for backoff retry or manual
// intervention. Records live until explicitly removed or purged.
type FailedNotification struct {
	OriginalNotificationID string                    `json:"original_notification_id"`
	TenantID               string                    `json:"tenant_id"`
	OriginalNotification   notification.Notification `json:"original_notification"`
	FailureReason          string                    `json:"failure_reason"`
	ErrorMessage           string                    `json:"error_message,omitempty"`
	StackTrace             string                    `json:"stack_trace,omitempty"`
	FailedAt               time.Time                 `json:"failed_at"`
	RetryCount             int                       `json:"retry_count"`
	MaxRetries             int                       `json:"max_retries"`
	NextRetryAt            *time.Time                `json:"next_retry_at,omitempty"`
}

// RetryDecision is the outcome of a retry eligibility check.
type RetryDecision struct {
	Retryable   bool      `json:"retryable"`
	RetryCount  int       `json:"retry_count"`
	NextRetryAt time.Time `json:"next_retry_at,omitzero"`
	Reason      string    `json:"reason,omitempty"`
}

// Statistics is a point-in-time snapshot of aggregate failure counters.
// Snapshots are copies: mutating one never leaks back into the store.
type Statistics struct {
	TotalFailed       int64            `json:"total_failed"`
	TotalRetried      int64            `json:"total_retried"`
	PermanentlyFailed int64            `json:"permanently_failed"`
	FailuresByReason  map[string]int64 `json:"failures_by_reason"`
}
