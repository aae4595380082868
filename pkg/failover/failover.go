package failover

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// RuleConditions restricts when a failover rule applies. Empty fields
// match everything; set fields are equality tests.
type RuleConditions struct {
	Priority  string `json:"priority,omitempty" yaml:"priority,omitempty"`
	EventType string `json:"event_type,omitempty" yaml:"event_type,omitempty"`
	TenantID  string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
}

// Rule maps a failing primary channel to an ordered list of fallbacks for
// one tenant.
type Rule struct {
	Name             string                 `json:"name" yaml:"name"`
	PrimaryChannel   notification.Channel   `json:"primary_channel" yaml:"primary_channel"`
	FailoverChannels []notification.Channel `json:"failover_channels" yaml:"failover_channels"`
	Enabled          bool                   `json:"enabled" yaml:"enabled"`
	Delay            time.Duration          `json:"delay" yaml:"delay"`
	MaxRetries       int                    `json:"max_retries" yaml:"max_retries"`
	Conditions       RuleConditions         `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Validate checks the rule's structural requirements.
func (r Rule) Validate() error {
	if r.Name == "" {
		return ErrMissingRuleName
	}
	if !r.PrimaryChannel.IsValid() {
		return ErrInvalidPrimaryChannel
	}
	if len(r.FailoverChannels) == 0 {
		return ErrNoFailoverChannels
	}
	for _, ch := range r.FailoverChannels {
		if !ch.IsValid() {
			return ErrInvalidFailoverChannel
		}
	}
	if r.Delay < 0 {
		return ErrNegativeDelay
	}
	if r.MaxRetries < 0 {
		return ErrNegativeMaxRetries
	}
	return nil
}

// matches reports whether the rule applies to the notification when the
// given primary channel failed.
func (r Rule) matches(n notification.Notification, primary notification.Channel) bool {
	if !r.Enabled || r.PrimaryChannel != primary {
		return false
	}
	if r.Conditions.Priority != "" && r.Conditions.Priority != n.Priority.String() {
		return false
	}
	if r.Conditions.EventType != "" && r.Conditions.EventType != n.EventType {
		return false
	}
	if r.Conditions.TenantID != "" && r.Conditions.TenantID != n.TenantID {
		return false
	}
	return true
}

// clone deep-copies the rule so published snapshots never alias caller
// slices.
func (r Rule) clone() Rule {
	out := r
	out.FailoverChannels = append([]notification.Channel(nil), r.FailoverChannels...)
	return out
}
