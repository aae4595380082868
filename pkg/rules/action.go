package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies a workflow action variant.
type ActionType string

const (
	ActionSendNotification   ActionType = "send_notification"
	ActionModifyNotification ActionType = "modify_notification"
	ActionAddRecipients      ActionType = "add_recipients"
	ActionRemoveRecipients   ActionType = "remove_recipients"
	ActionSetPriority        ActionType = "set_priority"
	ActionSetChannels        ActionType = "set_channels"
	ActionDelayDelivery      ActionType = "delay_delivery"
	ActionCancelDelivery     ActionType = "cancel_delivery"
	ActionExecuteWebhook     ActionType = "execute_webhook"
	ActionLogEvent           ActionType = "log_event"
	ActionEscalate           ActionType = "escalate"
	ActionAggregate          ActionType = "aggregate"
	ActionCustom             ActionType = "custom"
)

// RetryConfig controls per-action retry behavior for transient failures.
type RetryConfig struct {
	MaxRetryAttempts      int           `json:"max_retry_attempts"`
	InitialDelay          time.Duration `json:"initial_delay"`
	MaxDelay              time.Duration `json:"max_delay"`
	BackoffMultiplier     float64       `json:"backoff_multiplier"`
	UseExponentialBackoff bool          `json:"use_exponential_backoff"`
}

// NextDelay returns the wait before the given retry attempt (1-based).
func (r RetryConfig) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	if !r.UseExponentialBackoff {
		return initial
	}
	multiplier := r.BackoffMultiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Action is one workflow step executed when a rule matches. Actions are
// declarative: Parameters carries the variant-specific inputs, and the
// registered handler for Type interprets them.
type Action struct {
	Type              ActionType     `json:"type"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	ContinueOnFailure bool           `json:"continue_on_failure,omitempty"`
	Retry             *RetryConfig   `json:"retry,omitempty"`
}

// Validate checks the action references a known variant.
func (a Action) Validate() error {
	switch a.Type {
	case ActionSendNotification, ActionModifyNotification, ActionAddRecipients,
		ActionRemoveRecipients, ActionSetPriority, ActionSetChannels,
		ActionDelayDelivery, ActionCancelDelivery, ActionExecuteWebhook,
		ActionLogEvent, ActionEscalate, ActionAggregate, ActionCustom:
		return nil
	default:
		return ErrUnknownActionType
	}
}

// Clone deep-copies the action.
func (a Action) Clone() Action {
	out := a
	if a.Parameters != nil {
		out.Parameters = make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			out.Parameters[k] = v
		}
	}
	if a.Retry != nil {
		retry := *a.Retry
		out.Retry = &retry
	}
	return out
}

// ActionExecution is the ephemeral per-run record of one action: which
// rule it came from, whether it ran, and how it ended.
type ActionExecution struct {
	RuleID       string        `json:"rule_id"`
	RuleName     string        `json:"rule_name"`
	Action       Action        `json:"action"`
	Executed     bool          `json:"executed"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
}

// decodeParam extracts a typed parameter value, tolerating the loose
// forms a storage round-trip produces (JSON maps and []any slices) by
// re-marshaling when a direct type assertion fails.
func decodeParam[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("parameter has unsupported type %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parameter has unsupported type %T: %w", v, err)
	}
	return out, nil
}
