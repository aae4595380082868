package failover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Metadata keys tagged onto notification copies sent through failover.
const (
	MetaFailoverChannel = "failover.channel"
	MetaFailoverReason  = "failover.reason"
	MetaFailoverPrimary = "failover.primary_channel"
)

// Sender dispatches a notification. Satisfied by dispatch.Service.
type Sender interface {
	Send(ctx context.Context, n notification.Notification) dispatch.Result
}

// Result describes one failover execution.
type Result struct {
	Success        bool                   `json:"success"`
	UsedChannel    notification.Channel   `json:"used_channel,omitempty"`
	AttemptCount   int                    `json:"attempt_count"`
	FailedChannels []notification.Channel `json:"failed_channels,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

// Manager holds per-tenant failover rule sets and executes fallback
// chains through the delivery orchestrator. Safe for concurrent use;
// rule sets are replaced atomically per tenant.
type Manager struct {
	sender Sender
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	rules map[string][]Rule
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for failover events.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSleeper overrides the inter-attempt delay wait. Intended for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// NewManager creates a failover manager dispatching through the sender.
func NewManager(sender Sender, opts ...ManagerOption) *Manager {
	m := &Manager{
		sender: sender,
		log:    slog.Default(),
		sleep:  sleepWithContext,
		rules:  make(map[string][]Rule),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Configure validates and atomically replaces the tenant's rule set.
// One invalid rule rejects the whole set; the previous set stays active.
func (m *Manager) Configure(tenantID string, rules []Rule) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("failover rule %q: %w", rule.Name, err)
		}
	}

	snapshot := make([]Rule, len(rules))
	for i, rule := range rules {
		snapshot[i] = rule.clone()
	}

	m.mu.Lock()
	m.rules[tenantID] = snapshot
	m.mu.Unlock()

	m.log.Info("failover rules configured",
		logger.TenantID(tenantID),
		slog.Int("rule_count", len(snapshot)),
	)
	return nil
}

// Rules returns a copy of the tenant's current rule set.
func (m *Manager) Rules(tenantID string) []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.rules[tenantID]
	out := make([]Rule, len(stored))
	for i, rule := range stored {
		out[i] = rule.clone()
	}
	return out
}

// GetFailoverChannels unions the fallback channels of every enabled rule
// matching the notification and failed primary channel, dropping
// duplicates and the primary itself. Order follows rule order, then each
// rule's channel order.
func (m *Manager) GetFailoverChannels(n notification.Notification, primary notification.Channel) []notification.Channel {
	m.mu.RLock()
	tenantRules := m.rules[n.TenantID]
	m.mu.RUnlock()

	seen := map[notification.Channel]struct{}{primary: {}}
	var out []notification.Channel
	for _, rule := range tenantRules {
		if !rule.matches(n, primary) {
			continue
		}
		for _, ch := range rule.FailoverChannels {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	return out
}

// maxDelay returns the longest delay among matching rules; rules that
// contribute channels also contribute their pacing.
func (m *Manager) maxDelay(n notification.Notification, primary notification.Channel) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var delay time.Duration
	for _, rule := range m.rules[n.TenantID] {
		if rule.matches(n, primary) && rule.Delay > delay {
			delay = rule.Delay
		}
	}
	return delay
}

// ExecuteFailover tries each fallback channel in order through the
// delivery orchestrator, stopping at the first success. Each attempt uses
// a tagged copy of the notification restricted to the fallback channel.
func (m *Manager) ExecuteFailover(ctx context.Context, n notification.Notification, primary notification.Channel, reason string) Result {
	channels := m.GetFailoverChannels(n, primary)
	if len(channels) == 0 {
		return Result{
			Success: false,
			Message: fmt.Sprintf("no failover channels configured for %s", primary),
		}
	}

	delay := m.maxDelay(n, primary)
	result := Result{}
	for i, ch := range channels {
		if i > 0 && delay > 0 {
			if err := m.sleep(ctx, delay); err != nil {
				result.Message = "failover cancelled: " + err.Error()
				return result
			}
		}
		if err := ctx.Err(); err != nil {
			result.Message = "failover cancelled: " + err.Error()
			return result
		}

		tagged := n.Clone().
			WithChannels([]notification.Channel{ch}).
			WithMetadata(MetaFailoverChannel, string(ch)).
			WithMetadata(MetaFailoverPrimary, string(primary)).
			WithMetadata(MetaFailoverReason, reason)

		result.AttemptCount++
		sent := m.sender.Send(ctx, tagged)
		if sent.Success {
			result.Success = true
			result.UsedChannel = ch
			m.log.InfoContext(ctx, "failover delivery succeeded",
				logger.NotificationID(n.ID),
				logger.TenantID(n.TenantID),
				logger.Channel(string(ch)),
				logger.Attempt(result.AttemptCount),
			)
			return result
		}

		result.FailedChannels = append(result.FailedChannels, ch)
		m.log.WarnContext(ctx, "failover attempt failed",
			logger.NotificationID(n.ID),
			logger.TenantID(n.TenantID),
			logger.Channel(string(ch)),
			slog.String("message", sent.Message),
		)
	}

	result.Message = fmt.Sprintf("all %d failover channels failed", len(channels))
	return result
}
