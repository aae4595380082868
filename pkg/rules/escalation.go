package rules

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// EscalationActionType identifies the secondary notification path to take
// when delivery keeps failing.
type EscalationActionType string

const (
	// EscalationSendToChannel re-sends through a configured escalation channel.
	EscalationSendToChannel EscalationActionType = "send_to_escalation_channel"
	// EscalationNotifyOnCall pages the on-call team for critical failures.
	EscalationNotifyOnCall EscalationActionType = "send_to_on_call_team"
)

// EscalationAction is one escalation step for an external escalation
// executor to carry out.
type EscalationAction struct {
	Type            EscalationActionType `json:"type"`
	EscalationLevel int                  `json:"escalation_level"`
	Channel         notification.Channel `json:"channel,omitempty"`
	Parameters      map[string]any       `json:"parameters,omitempty"`
}

// EscalationDecision is the outcome of an escalation check.
type EscalationDecision struct {
	ShouldEscalate bool               `json:"should_escalate"`
	Reason         string             `json:"reason,omitempty"`
	Actions        []EscalationAction `json:"actions,omitempty"`
}

const defaultMaxAttempts = 3

// CheckEscalation decides whether sustained or critical delivery failure
// warrants escalation. No escalation happens when escalation is disabled,
// any attempt succeeded, or the most recent attempt is younger than the
// configured escalation delay. Escalation triggers once failed attempts
// reach the max-attempt budget, or immediately on the first failure for
// critical notifications.
func (e *Engine) CheckEscalation(n notification.Notification, attempts []notification.DeliveryAttempt) EscalationDecision {
	opts := n.DeliveryOptions
	if !opts.EnableEscalation {
		return EscalationDecision{Reason: "escalation disabled"}
	}
	if len(attempts) == 0 {
		return EscalationDecision{Reason: "no delivery attempts recorded"}
	}

	failed := 0
	latest := attempts[0].AttemptedAt
	for _, attempt := range attempts {
		if attempt.IsSuccess {
			return EscalationDecision{Reason: "delivery succeeded"}
		}
		failed++
		if attempt.AttemptedAt.After(latest) {
			latest = attempt.AttemptedAt
		}
	}

	if opts.EscalationDelay > 0 && e.clock().Sub(latest) < opts.EscalationDelay {
		return EscalationDecision{Reason: "escalation delay not elapsed"}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	critical := n.Priority == notification.PriorityCritical
	if failed < maxAttempts && !critical {
		return EscalationDecision{Reason: "attempt budget not exhausted"}
	}

	decision := EscalationDecision{
		ShouldEscalate: true,
		Reason:         fmt.Sprintf("%d failed attempts, priority %s", failed, n.Priority),
	}
	for _, ch := range opts.EscalationChannels {
		decision.Actions = append(decision.Actions, EscalationAction{
			Type:            EscalationSendToChannel,
			EscalationLevel: 1,
			Channel:         ch,
		})
	}
	if critical {
		decision.Actions = append(decision.Actions, EscalationAction{
			Type:            EscalationNotifyOnCall,
			EscalationLevel: 2,
		})
	}
	return decision
}
