package notification

import (
	"time"
)

// DeliveryOptions controls retry, escalation and attempt budgets for a
// single notification.
type DeliveryOptions struct {
	MaxAttempts        int           `json:"max_attempts"`
	EscalationDelay    time.Duration `json:"escalation_delay"`
	EnableEscalation   bool          `json:"enable_escalation"`
	EscalationChannels []Channel     `json:"escalation_channels,omitempty"`
}

// Notification is the core event flowing through the orchestration
// pipeline. It is treated as an immutable value: mutation helpers return a
// new instance with deep-copied collections, so concurrent readers of the
// pre-mutation value are never surprised. The ID stays stable across the
// whole lifecycle regardless of how many copies workflow actions produce.
type Notification struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	EventType         string            `json:"event_type"`
	Priority          Priority          `json:"priority"`
	Subject           string            `json:"subject"`
	Content           string            `json:"content"`
	Recipients        []Recipient       `json:"recipients,omitempty"`
	PreferredChannels []Channel         `json:"preferred_channels,omitempty"`
	TemplateID        string            `json:"template_id,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
	ScheduledFor      *time.Time        `json:"scheduled_for,omitempty"`
	DeliveryOptions   DeliveryOptions   `json:"delivery_options"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// Clone returns an independent deep copy of the notification.
func (n Notification) Clone() Notification {
	out := n

	if n.Recipients != nil {
		out.Recipients = make([]Recipient, len(n.Recipients))
		for i, r := range n.Recipients {
			out.Recipients[i] = r.Clone()
		}
	}
	if n.PreferredChannels != nil {
		out.PreferredChannels = append([]Channel(nil), n.PreferredChannels...)
	}
	if n.TemplateVariables != nil {
		out.TemplateVariables = make(map[string]string, len(n.TemplateVariables))
		for k, v := range n.TemplateVariables {
			out.TemplateVariables[k] = v
		}
	}
	if n.ScheduledFor != nil {
		at := *n.ScheduledFor
		out.ScheduledFor = &at
	}
	if n.DeliveryOptions.EscalationChannels != nil {
		out.DeliveryOptions.EscalationChannels = append([]Channel(nil), n.DeliveryOptions.EscalationChannels...)
	}
	if n.Metadata != nil {
		out.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}

	return out
}

// WithSubject returns a copy with the subject replaced.
func (n Notification) WithSubject(subject string) Notification {
	out := n.Clone()
	out.Subject = subject
	return out
}

// WithContent returns a copy with the content replaced.
func (n Notification) WithContent(content string) Notification {
	out := n.Clone()
	out.Content = content
	return out
}

// WithPriority returns a copy with the priority replaced.
func (n Notification) WithPriority(p Priority) Notification {
	out := n.Clone()
	out.Priority = p
	return out
}

// WithRecipients returns a copy with the recipient list fully replaced.
func (n Notification) WithRecipients(recipients []Recipient) Notification {
	out := n.Clone()
	out.Recipients = make([]Recipient, len(recipients))
	for i, r := range recipients {
		out.Recipients[i] = r.Clone()
	}
	return out
}

// WithChannels returns a copy with the preferred channel list fully replaced.
func (n Notification) WithChannels(channels []Channel) Notification {
	out := n.Clone()
	out.PreferredChannels = append([]Channel(nil), channels...)
	return out
}

// WithScheduledFor returns a copy scheduled for the given time.
func (n Notification) WithScheduledFor(at time.Time) Notification {
	out := n.Clone()
	out.ScheduledFor = &at
	return out
}

// WithMetadata returns a copy with one metadata entry set.
func (n Notification) WithMetadata(key string, value any) Notification {
	out := n.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

// AddRecipients returns a copy with the given recipients unioned in by id.
// Existing recipients keep their position; duplicates are skipped.
func (n Notification) AddRecipients(recipients ...Recipient) Notification {
	out := n.Clone()
	seen := make(map[string]struct{}, len(out.Recipients))
	for _, r := range out.Recipients {
		seen[r.ID] = struct{}{}
	}
	for _, r := range recipients {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out.Recipients = append(out.Recipients, r.Clone())
	}
	return out
}

// RemoveRecipients returns a copy with the identified recipients removed.
func (n Notification) RemoveRecipients(ids ...string) Notification {
	out := n.Clone()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := out.Recipients[:0]
	for _, r := range out.Recipients {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	out.Recipients = kept
	return out
}

// MetadataValue looks up a metadata entry.
func (n Notification) MetadataValue(key string) (any, bool) {
	if n.Metadata == nil {
		return nil, false
	}
	v, ok := n.Metadata[key]
	return v, ok
}

// IsDue reports whether the notification is ready for delivery at the
// given instant. Unscheduled notifications are always due.
func (n Notification) IsDue(now time.Time) bool {
	if n.ScheduledFor == nil {
		return true
	}
	return !n.ScheduledFor.After(now)
}
