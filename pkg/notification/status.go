package notification

import "time"

// State is the delivery lifecycle state of a notification.
type State string

const (
	StatePending      State = "pending"
	StateScheduled    State = "scheduled"
	StateProcessing   State = "processing"
	StateDelivered    State = "delivered"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
	StateAcknowledged State = "acknowledged"
)

// transitions is the allowed state graph:
// Pending|Scheduled -> Processing -> Delivered|Failed -> Acknowledged,
// with cancellation from any non-terminal state and retry re-entering
// Processing from Failed.
var transitions = map[State][]State{
	StatePending:    {StateScheduled, StateProcessing, StateCancelled},
	StateScheduled:  {StateProcessing, StateCancelled},
	StateProcessing: {StateDelivered, StateFailed, StateCancelled},
	StateDelivered:  {StateAcknowledged},
	StateFailed:     {StateProcessing, StateAcknowledged},
}

// CanTransitionTo reports whether moving to the target state is allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic processing happens in
// this state. Failed is terminal only until a retry is issued.
func (s State) IsTerminal() bool {
	switch s {
	case StateDelivered, StateCancelled, StateAcknowledged, StateFailed:
		return true
	}
	return false
}

// Progress checkpoints reported on the status as the pipeline advances.
const (
	ProgressStarted   = 0
	ProgressWorkflow  = 25
	ProgressRendered  = 50
	ProgressCompleted = 100
)

// Status is the live processing record for one notification. There is one
// instance per notification id, mutated in place by the orchestrator
// behind the status store's lock.
type Status struct {
	NotificationID string     `json:"notification_id"`
	State          State      `json:"state"`
	Progress       int        `json:"progress"`
	AttemptCount   int        `json:"attempt_count"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUpdatedAt  time.Time  `json:"last_updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// DeliveryAttempt is one recorded try to deliver to one recipient on one
// channel. Attempts are append-only per notification; readers reconstruct
// ordering from AttemptedAt rather than insertion order.
type DeliveryAttempt struct {
	NotificationID string    `json:"notification_id"`
	RecipientID    string    `json:"recipient_id"`
	Channel        Channel   `json:"channel"`
	IsSuccess      bool      `json:"is_success"`
	DeliveryID     string    `json:"delivery_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
	CompletedAt    time.Time `json:"completed_at"`
}
