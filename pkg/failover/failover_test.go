package failover_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/failover"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// fakeSender records each dispatched notification and succeeds only for
// channels in the ok set.
type fakeSender struct {
	mu   sync.Mutex
	ok   map[notification.Channel]bool
	sent []notification.Notification
}

func (s *fakeSender) Send(_ context.Context, n notification.Notification) dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)

	var channel notification.Channel
	if len(n.PreferredChannels) > 0 {
		channel = n.PreferredChannels[0]
	}
	if s.ok[channel] {
		return dispatch.Result{NotificationID: n.ID, Success: true, State: notification.StateDelivered}
	}
	return dispatch.Result{NotificationID: n.ID, Success: false, State: notification.StateFailed, Message: "provider down"}
}

func baseNotification() notification.Notification {
	return notification.Notification{
		ID:        "n-1",
		TenantID:  "acme",
		EventType: "payment.failed",
		Priority:  notification.PriorityHigh,
	}
}

func emailRule(name string, fallbacks ...notification.Channel) failover.Rule {
	return failover.Rule{
		Name:             name,
		PrimaryChannel:   notification.ChannelEmail,
		FailoverChannels: fallbacks,
		Enabled:          true,
	}
}

func TestManager_ConfigureValidatesWholeSet(t *testing.T) {
	t.Parallel()

	mgr := failover.NewManager(&fakeSender{})

	valid := emailRule("good", notification.ChannelSMS)
	require.NoError(t, mgr.Configure("acme", []failover.Rule{valid}))
	require.Len(t, mgr.Rules("acme"), 1)

	// An invalid rule rejects the whole replacement set.
	invalid := failover.Rule{Name: "bad", PrimaryChannel: notification.ChannelEmail, Enabled: true}
	err := mgr.Configure("acme", []failover.Rule{emailRule("other", notification.ChannelPush), invalid})
	assert.ErrorIs(t, err, failover.ErrNoFailoverChannels)

	// The previous set stays active.
	rules := mgr.Rules("acme")
	require.Len(t, rules, 1)
	assert.Equal(t, "good", rules[0].Name)
}

func TestManager_ConfigureRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	mgr := failover.NewManager(&fakeSender{})

	tests := []struct {
		name string
		rule failover.Rule
		want error
	}{
		{"missing name", failover.Rule{PrimaryChannel: notification.ChannelEmail, FailoverChannels: []notification.Channel{notification.ChannelSMS}}, failover.ErrMissingRuleName},
		{"bad primary", failover.Rule{Name: "r", PrimaryChannel: "pigeon", FailoverChannels: []notification.Channel{notification.ChannelSMS}}, failover.ErrInvalidPrimaryChannel},
		{"bad fallback", failover.Rule{Name: "r", PrimaryChannel: notification.ChannelEmail, FailoverChannels: []notification.Channel{"pigeon"}}, failover.ErrInvalidFailoverChannel},
		{"negative delay", failover.Rule{Name: "r", PrimaryChannel: notification.ChannelEmail, FailoverChannels: []notification.Channel{notification.ChannelSMS}, Delay: -time.Second}, failover.ErrNegativeDelay},
		{"negative retries", failover.Rule{Name: "r", PrimaryChannel: notification.ChannelEmail, FailoverChannels: []notification.Channel{notification.ChannelSMS}, MaxRetries: -1}, failover.ErrNegativeMaxRetries},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mgr.Configure("acme", []failover.Rule{tt.rule}), tt.want)
		})
	}

	assert.ErrorIs(t, mgr.Configure("", nil), failover.ErrMissingTenant)
}

func TestManager_GetFailoverChannels(t *testing.T) {
	t.Parallel()

	mgr := failover.NewManager(&fakeSender{})
	require.NoError(t, mgr.Configure("acme", []failover.Rule{
		emailRule("first", notification.ChannelSMS, notification.ChannelPush),
		// Overlapping channels and the primary itself are dropped.
		emailRule("second", notification.ChannelPush, notification.ChannelEmail, notification.ChannelSlack),
		// Disabled rules never contribute.
		{
			Name:             "disabled",
			PrimaryChannel:   notification.ChannelEmail,
			FailoverChannels: []notification.Channel{notification.ChannelWebhook},
		},
	}))

	channels := mgr.GetFailoverChannels(baseNotification(), notification.ChannelEmail)
	assert.Equal(t, []notification.Channel{
		notification.ChannelSMS,
		notification.ChannelPush,
		notification.ChannelSlack,
	}, channels)

	// Different primary, different tenant: nothing matches.
	assert.Empty(t, mgr.GetFailoverChannels(baseNotification(), notification.ChannelSMS))
	other := baseNotification()
	other.TenantID = "other"
	assert.Empty(t, mgr.GetFailoverChannels(other, notification.ChannelEmail))
}

func TestManager_ConditionsRestrictMatching(t *testing.T) {
	t.Parallel()

	mgr := failover.NewManager(&fakeSender{})
	rule := emailRule("critical payments", notification.ChannelSMS)
	rule.Conditions = failover.RuleConditions{
		Priority:  "critical",
		EventType: "payment.failed",
	}
	require.NoError(t, mgr.Configure("acme", []failover.Rule{rule}))

	n := baseNotification()
	assert.Empty(t, mgr.GetFailoverChannels(n, notification.ChannelEmail))

	n.Priority = notification.PriorityCritical
	assert.Equal(t,
		[]notification.Channel{notification.ChannelSMS},
		mgr.GetFailoverChannels(n, notification.ChannelEmail),
	)

	n.EventType = "user.signup"
	assert.Empty(t, mgr.GetFailoverChannels(n, notification.ChannelEmail))
}

func TestManager_ExecuteFailoverStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{ok: map[notification.Channel]bool{notification.ChannelPush: true}}
	mgr := failover.NewManager(sender)
	require.NoError(t, mgr.Configure("acme", []failover.Rule{
		emailRule("chain", notification.ChannelSMS, notification.ChannelPush, notification.ChannelSlack),
	}))

	result := mgr.ExecuteFailover(context.Background(), baseNotification(), notification.ChannelEmail, "smtp outage")

	assert.True(t, result.Success)
	assert.Equal(t, notification.ChannelPush, result.UsedChannel)
	assert.Equal(t, 2, result.AttemptCount)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS}, result.FailedChannels)

	// Slack was never tried.
	require.Len(t, sender.sent, 2)

	// Each attempt is restricted to one channel and tagged.
	first := sender.sent[0]
	assert.Equal(t, []notification.Channel{notification.ChannelSMS}, first.PreferredChannels)
	reason, _ := first.MetadataValue(failover.MetaFailoverReason)
	assert.Equal(t, "smtp outage", reason)
	primary, _ := first.MetadataValue(failover.MetaFailoverPrimary)
	assert.Equal(t, "email", primary)
}

func TestManager_ExecuteFailoverAllChannelsFail(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	mgr := failover.NewManager(sender)
	require.NoError(t, mgr.Configure("acme", []failover.Rule{
		emailRule("chain", notification.ChannelSMS, notification.ChannelPush),
	}))

	result := mgr.ExecuteFailover(context.Background(), baseNotification(), notification.ChannelEmail, "smtp outage")

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.AttemptCount)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS, notification.ChannelPush}, result.FailedChannels)
	assert.Contains(t, result.Message, "all 2 failover channels failed")
}

func TestManager_ExecuteFailoverNoRules(t *testing.T) {
	t.Parallel()

	mgr := failover.NewManager(&fakeSender{})
	result := mgr.ExecuteFailover(context.Background(), baseNotification(), notification.ChannelEmail, "outage")

	assert.False(t, result.Success)
	assert.Zero(t, result.AttemptCount)
	assert.Contains(t, result.Message, "no failover channels configured")
}

func TestManager_ExecuteFailoverRespectsDelayAndCancellation(t *testing.T) {
	t.Parallel()

	var waited []time.Duration
	sender := &fakeSender{}
	mgr := failover.NewManager(sender, failover.WithSleeper(func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}))

	rule := emailRule("paced", notification.ChannelSMS, notification.ChannelPush)
	rule.Delay = 30 * time.Second
	require.NoError(t, mgr.Configure("acme", []failover.Rule{rule}))

	result := mgr.ExecuteFailover(context.Background(), baseNotification(), notification.ChannelEmail, "outage")
	assert.False(t, result.Success)
	// No wait before the first attempt, one wait between the two.
	assert.Equal(t, []time.Duration{30 * time.Second}, waited)

	// Cancellation aborts before further attempts.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender.sent = nil
	result = mgr.ExecuteFailover(ctx, baseNotification(), notification.ChannelEmail, "outage")
	assert.False(t, result.Success)
	assert.Empty(t, sender.sent)
}

func TestLoadRulesFromYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failover.yaml")
	content := `
tenants:
  acme:
    - name: email-to-sms
      primary_channel: email
      failover_channels: [sms, push]
      enabled: true
      delay: 30s
      max_retries: 2
      conditions:
        priority: critical
  globex:
    - name: sms-to-slack
      primary_channel: sms
      failover_channels: [slack]
      enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tenants, err := failover.LoadRules(path)
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	acme := tenants["acme"]
	require.Len(t, acme, 1)
	assert.Equal(t, "email-to-sms", acme[0].Name)
	assert.Equal(t, notification.ChannelEmail, acme[0].PrimaryChannel)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS, notification.ChannelPush}, acme[0].FailoverChannels)
	assert.Equal(t, 30*time.Second, acme[0].Delay)
	assert.Equal(t, 2, acme[0].MaxRetries)
	assert.Equal(t, "critical", acme[0].Conditions.Priority)

	mgr := failover.NewManager(&fakeSender{})
	require.NoError(t, mgr.ConfigureFromFile(path))
	assert.Len(t, mgr.Rules("globex"), 1)
}

func TestLoadRulesRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failover.yaml")
	content := `
tenants:
  acme:
    - name: broken
      primary_channel: email
      enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := failover.LoadRules(path)
	assert.ErrorIs(t, err, failover.ErrNoFailoverChannels)

	_, err = failover.LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
