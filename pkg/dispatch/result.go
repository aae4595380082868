package dispatch

import (
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Result is the outcome of sending one notification. Failures are values,
// never panics: the orchestrator's public surface does not throw.
type Result struct {
	NotificationID string                         `json:"notification_id"`
	Success        bool                           `json:"success"`
	State          notification.State             `json:"state"`
	Message        string                         `json:"message,omitempty"`
	Attempts       []notification.DeliveryAttempt `json:"attempts,omitempty"`
	SuccessCount   int                            `json:"success_count"`
	FailureCount   int                            `json:"failure_count"`
}

// BatchStatus summarizes a batch send.
type BatchStatus string

const (
	BatchAllSuccessful  BatchStatus = "all_successful"
	BatchAllFailed      BatchStatus = "all_failed"
	BatchPartialFailure BatchStatus = "partial_failure"
)

// BatchResult aggregates per-item results of a batch send. Results keep
// the input order.
type BatchResult struct {
	Status       BatchStatus `json:"status"`
	Results      []Result    `json:"results"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
}

func summarizeBatch(results []Result) BatchResult {
	out := BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	switch {
	case out.FailureCount == 0:
		out.Status = BatchAllSuccessful
	case out.SuccessCount == 0:
		out.Status = BatchAllFailed
	default:
		out.Status = BatchPartialFailure
	}
	return out
}
