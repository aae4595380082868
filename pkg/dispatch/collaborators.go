package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
)

// ValidationResult is a provider's verdict on whether a notification can
// be sent to a recipient on its channel.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ProviderResult describes one provider send attempt.
type ProviderResult struct {
	Success     bool      `json:"success"`
	DeliveryID  string    `json:"delivery_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Provider delivers notifications on one channel. Implementations live
// outside the core (SMTP, SMS gateway, push service, webhook poster).
type Provider interface {
	// Channel identifies which channel this provider serves.
	Channel() notification.Channel

	// Validate checks deliverability before a send is attempted.
	Validate(ctx context.Context, n notification.Notification, r notification.Recipient) ValidationResult

	// Send performs the delivery. Transport failures are reported in the
	// result, not as an error; an error means the provider itself broke.
	Send(ctx context.Context, n notification.Notification, r notification.Recipient) (ProviderResult, error)
}

// RenderResult is the output of an external template render.
type RenderResult struct {
	Success         bool   `json:"success"`
	RenderedSubject string `json:"rendered_subject,omitempty"`
	RenderedContent string `json:"rendered_content,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Renderer resolves a template id into final subject and content.
type Renderer interface {
	Render(ctx context.Context, n notification.Notification, templateID string) RenderResult
}

// EscalationExecutor carries out escalation actions decided by the rule
// engine. Called fire-and-forget after a failed delivery.
type EscalationExecutor interface {
	Escalate(ctx context.Context, n notification.Notification, actions []rules.EscalationAction) error
}

// AuditEvent is one structured audit record emitted by the orchestrator.
type AuditEvent struct {
	Action         string         `json:"action"`
	NotificationID string         `json:"notification_id"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Actor          string         `json:"actor,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Details        map[string]any `json:"details,omitempty"`
}

// AuditSink receives audit events. Sink failures never fail delivery; the
// orchestrator logs and moves on.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// slogAuditSink writes audit events to a structured logger. The default
// sink when the host wires nothing else.
type slogAuditSink struct {
	log *slog.Logger
}

func (s slogAuditSink) Record(ctx context.Context, event AuditEvent) error {
	s.log.InfoContext(ctx, "audit event",
		slog.String("action", event.Action),
		slog.String("notification_id", event.NotificationID),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor", event.Actor),
		slog.Time("occurred_at", event.OccurredAt),
		slog.Any("details", event.Details),
	)
	return nil
}
