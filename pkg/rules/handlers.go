package rules

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Metadata keys workflow actions leave on the notification for the
// delivery orchestrator to act on.
const (
	MetaCancelRequested = "workflow.cancel_requested"
	MetaSendRequested   = "workflow.send_requested"
	MetaEscalationLevel = "workflow.escalation_level"
	MetaAggregateKey    = "workflow.aggregate_key"
	MetaWebhookURL      = "workflow.webhook_url"
	MetaCustomAction    = "workflow.custom_action"
)

// ActionHandler executes one workflow action variant. Implementations
// return the (possibly mutated) notification; they must never mutate the
// input value in place.
type ActionHandler interface {
	Type() ActionType
	Execute(ctx context.Context, n notification.Notification, params map[string]any) (notification.Notification, error)
}

// WebhookExecutor delegates execute_webhook actions to an external
// collaborator. When none is configured, the action records the target
// URL in metadata for the hosting service to relay.
type WebhookExecutor func(ctx context.Context, endpoint string, payload map[string]any) error

func defaultHandlers(logger *slog.Logger, clock func() time.Time, webhook WebhookExecutor) map[ActionType]ActionHandler {
	handlers := []ActionHandler{
		modifyNotificationHandler{},
		addRecipientsHandler{},
		removeRecipientsHandler{},
		setPriorityHandler{},
		setChannelsHandler{},
		delayDeliveryHandler{clock: clock},
		cancelDeliveryHandler{},
		executeWebhookHandler{exec: webhook},
		logEventHandler{logger: logger},
		escalateHandler{},
		aggregateHandler{},
		customHandler{},
		sendNotificationHandler{},
	}
	out := make(map[ActionType]ActionHandler, len(handlers))
	for _, h := range handlers {
		out[h.Type()] = h
	}
	return out
}

type modifyNotificationHandler struct{}

func (modifyNotificationHandler) Type() ActionType { return ActionModifyNotification }

// Execute applies subject, content and priority overrides. At least one
// override must be present.
func (modifyNotificationHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	subject, hasSubject := paramString(params, "subject")
	content, hasContent := paramString(params, "content")
	priority, hasPriority, err := paramPriority(params, "priority")
	if err != nil {
		return n, err
	}
	if !hasSubject && !hasContent && !hasPriority {
		return n, fmt.Errorf("%w: modify_notification requires subject, content or priority", ErrInvalidActionParameters)
	}

	out := n.Clone()
	if hasSubject {
		out.Subject = subject
	}
	if hasContent {
		out.Content = content
	}
	if hasPriority {
		out.Priority = priority
	}
	return out, nil
}

type addRecipientsHandler struct{}

func (addRecipientsHandler) Type() ActionType { return ActionAddRecipients }

func (addRecipientsHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	raw, ok := params["recipients"]
	if !ok {
		return n, fmt.Errorf("%w: add_recipients requires a recipients list", ErrInvalidActionParameters)
	}
	recipients, err := decodeParam[[]notification.Recipient](raw)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidActionParameters, err)
	}
	if len(recipients) == 0 {
		return n, fmt.Errorf("%w: add_recipients requires a non-empty recipients list", ErrInvalidActionParameters)
	}
	return n.AddRecipients(recipients...), nil
}

type removeRecipientsHandler struct{}

func (removeRecipientsHandler) Type() ActionType { return ActionRemoveRecipients }

func (removeRecipientsHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	raw, ok := params["recipient_ids"]
	if !ok {
		return n, fmt.Errorf("%w: remove_recipients requires recipient_ids", ErrInvalidActionParameters)
	}
	ids, err := decodeParam[[]string](raw)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidActionParameters, err)
	}
	if len(ids) == 0 {
		return n, fmt.Errorf("%w: remove_recipients requires a non-empty recipient_ids list", ErrInvalidActionParameters)
	}
	return n.RemoveRecipients(ids...), nil
}

type setPriorityHandler struct{}

func (setPriorityHandler) Type() ActionType { return ActionSetPriority }

func (setPriorityHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	priority, ok, err := paramPriority(params, "priority")
	if err != nil {
		return n, err
	}
	if !ok {
		return n, fmt.Errorf("%w: set_priority requires a priority", ErrInvalidActionParameters)
	}
	return n.WithPriority(priority), nil
}

type setChannelsHandler struct{}

func (setChannelsHandler) Type() ActionType { return ActionSetChannels }

func (setChannelsHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	raw, ok := params["channels"]
	if !ok {
		return n, fmt.Errorf("%w: set_channels requires a channels list", ErrInvalidActionParameters)
	}
	channels, err := decodeParam[[]notification.Channel](raw)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidActionParameters, err)
	}
	if len(channels) == 0 {
		return n, fmt.Errorf("%w: set_channels requires a non-empty channels list", ErrInvalidActionParameters)
	}
	for _, ch := range channels {
		if !ch.IsValid() {
			return n, fmt.Errorf("%w: unknown channel %q", ErrInvalidActionParameters, ch)
		}
	}
	return n.WithChannels(channels), nil
}

type delayDeliveryHandler struct {
	clock func() time.Time
}

func (delayDeliveryHandler) Type() ActionType { return ActionDelayDelivery }

func (h delayDeliveryHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	delay, ok, err := paramDuration(params, "delay")
	if err != nil {
		return n, err
	}
	if !ok || delay <= 0 {
		return n, fmt.Errorf("%w: delay_delivery requires a positive delay", ErrInvalidActionParameters)
	}
	return n.WithScheduledFor(h.clock().Add(delay)), nil
}

type cancelDeliveryHandler struct{}

func (cancelDeliveryHandler) Type() ActionType { return ActionCancelDelivery }

func (cancelDeliveryHandler) Execute(_ context.Context, n notification.Notification, _ map[string]any) (notification.Notification, error) {
	return n.WithMetadata(MetaCancelRequested, true), nil
}

type executeWebhookHandler struct {
	exec WebhookExecutor
}

func (executeWebhookHandler) Type() ActionType { return ActionExecuteWebhook }

func (h executeWebhookHandler) Execute(ctx context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	endpoint, ok := paramString(params, "url")
	if !ok {
		return n, fmt.Errorf("%w: execute_webhook requires a url", ErrInvalidActionParameters)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return n, fmt.Errorf("%w: execute_webhook url %q is not a valid http(s) URL", ErrInvalidActionParameters, endpoint)
	}

	if h.exec != nil {
		payload, _ := params["payload"].(map[string]any)
		if err := h.exec(ctx, endpoint, payload); err != nil {
			return n, fmt.Errorf("webhook execution failed: %w", err)
		}
		return n, nil
	}
	return n.WithMetadata(MetaWebhookURL, endpoint), nil
}

type logEventHandler struct {
	logger *slog.Logger
}

func (logEventHandler) Type() ActionType { return ActionLogEvent }

func (h logEventHandler) Execute(ctx context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	message, ok := paramString(params, "message")
	if !ok {
		message = "workflow log event"
	}
	h.logger.InfoContext(ctx, message,
		slog.String("tenant_id", n.TenantID),
		slog.String("notification_id", n.ID),
		slog.String("event_type", n.EventType),
	)
	return n, nil
}

type escalateHandler struct{}

func (escalateHandler) Type() ActionType { return ActionEscalate }

func (escalateHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	level := 1
	if raw, ok := params["level"]; ok {
		parsed, err := decodeParam[int](raw)
		if err != nil || parsed < 1 {
			return n, fmt.Errorf("%w: escalate level must be a positive integer", ErrInvalidActionParameters)
		}
		level = parsed
	}
	return n.WithMetadata(MetaEscalationLevel, level), nil
}

type aggregateHandler struct{}

func (aggregateHandler) Type() ActionType { return ActionAggregate }

func (aggregateHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	key, ok := paramString(params, "key")
	if !ok {
		return n, fmt.Errorf("%w: aggregate requires a key", ErrInvalidActionParameters)
	}
	return n.WithMetadata(MetaAggregateKey, key), nil
}

type customHandler struct{}

func (customHandler) Type() ActionType { return ActionCustom }

func (customHandler) Execute(_ context.Context, n notification.Notification, params map[string]any) (notification.Notification, error) {
	name, ok := paramString(params, "name")
	if !ok {
		return n, fmt.Errorf("%w: custom action requires a name", ErrInvalidActionParameters)
	}
	return n.WithMetadata(MetaCustomAction, name), nil
}

type sendNotificationHandler struct{}

func (sendNotificationHandler) Type() ActionType { return ActionSendNotification }

// Execute records the explicit send request. The orchestrator is already
// delivering the notification, so this is a marker rather than a
// recursive send.
func (sendNotificationHandler) Execute(_ context.Context, n notification.Notification, _ map[string]any) (notification.Notification, error) {
	return n.WithMetadata(MetaSendRequested, true), nil
}

func paramString(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// paramPriority accepts a priority as a name, a typed value, or a number.
func paramPriority(params map[string]any, key string) (notification.Priority, bool, error) {
	raw, ok := params[key]
	if !ok {
		return notification.PriorityNormal, false, nil
	}
	switch v := raw.(type) {
	case notification.Priority:
		return v, true, nil
	case string:
		p, ok := notification.ParsePriority(v)
		if !ok {
			return notification.PriorityNormal, false, fmt.Errorf("%w: unknown priority %q", ErrInvalidActionParameters, v)
		}
		return p, true, nil
	case int:
		return notification.Priority(v), true, nil
	case float64:
		return notification.Priority(int(v)), true, nil
	default:
		return notification.PriorityNormal, false, fmt.Errorf("%w: priority has unsupported type %T", ErrInvalidActionParameters, raw)
	}
}

// paramDuration accepts a time.Duration, a Go duration string such as
// "5m", or a number of seconds.
func paramDuration(params map[string]any, key string) (time.Duration, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, true, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false, fmt.Errorf("%w: invalid duration %q", ErrInvalidActionParameters, v)
		}
		return d, true, nil
	case int:
		return time.Duration(v) * time.Second, true, nil
	case int64:
		return time.Duration(v) * time.Second, true, nil
	case float64:
		return time.Duration(v * float64(time.Second)), true, nil
	default:
		return 0, false, fmt.Errorf("%w: duration has unsupported type %T", ErrInvalidActionParameters, raw)
	}
}
