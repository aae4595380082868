package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/deadletter"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
)

type fakeProvider struct {
	channel      notification.Channel
	invalid      []string
	sendErr      error
	failFor      map[string]string
	panicFor     map[string]bool
	mu           sync.Mutex
	sentTo       []string
	deliverySeed int
}

func (p *fakeProvider) Channel() notification.Channel { return p.channel }

func (p *fakeProvider) Validate(_ context.Context, _ notification.Notification, _ notification.Recipient) dispatch.ValidationResult {
	if len(p.invalid) > 0 {
		return dispatch.ValidationResult{IsValid: false, Errors: p.invalid}
	}
	return dispatch.ValidationResult{IsValid: true}
}

func (p *fakeProvider) Send(_ context.Context, _ notification.Notification, r notification.Recipient) (dispatch.ProviderResult, error) {
	if p.panicFor[r.ID] {
		panic("provider blew up")
	}
	if p.sendErr != nil {
		return dispatch.ProviderResult{}, p.sendErr
	}

	p.mu.Lock()
	p.sentTo = append(p.sentTo, r.ID)
	p.deliverySeed++
	seed := p.deliverySeed
	p.mu.Unlock()

	if reason, ok := p.failFor[r.ID]; ok {
		return dispatch.ProviderResult{Success: false, Error: reason}, nil
	}
	return dispatch.ProviderResult{
		Success:    true,
		DeliveryID: fmt.Sprintf("delivery-%d", seed),
	}, nil
}

type fakeRenderer struct {
	fail bool
}

func (r fakeRenderer) Render(_ context.Context, _ notification.Notification, templateID string) dispatch.RenderResult {
	if r.fail {
		return dispatch.RenderResult{Success: false, Error: "template not found: " + templateID}
	}
	return dispatch.RenderResult{
		Success:         true,
		RenderedSubject: "rendered subject",
		RenderedContent: "rendered content",
	}
}

type fakeEscalator struct {
	mu      sync.Mutex
	actions []rules.EscalationAction
}

func (e *fakeEscalator) Escalate(_ context.Context, _ notification.Notification, actions []rules.EscalationAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, actions...)
	return nil
}

func emailRecipient(id string) notification.Recipient {
	return notification.Recipient{
		ID:    id,
		Name:  "User " + id,
		Email: id + "@example.com",
	}
}

func testNotification(recipients ...notification.Recipient) notification.Notification {
	return notification.Notification{
		TenantID:   "acme",
		EventType:  "payment.failed",
		Priority:   notification.PriorityNormal,
		Subject:    "Payment failed",
		Content:    "Your payment could not be processed.",
		Recipients: recipients,
	}
}

func newTestService(t *testing.T, opts ...dispatch.ServiceOption) (*dispatch.Service, *fakeProvider) {
	t.Helper()

	provider := &fakeProvider{channel: notification.ChannelEmail}
	engine := rules.NewEngine(rules.NewMemoryStore())
	opts = append([]dispatch.ServiceOption{dispatch.WithProvider(provider)}, opts...)
	return dispatch.NewService(engine, opts...), provider
}

func TestService_SendDeliversToAllRecipients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)

	result := svc.Send(ctx, testNotification(emailRecipient("r1"), emailRecipient("r2")))

	assert.True(t, result.Success)
	assert.Equal(t, notification.StateDelivered, result.State)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	assert.Equal(t, []string{"r1", "r2"}, provider.sentTo)

	status, err := svc.Status(ctx, result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateDelivered, status.State)
	assert.Equal(t, notification.ProgressCompleted, status.Progress)
	assert.Equal(t, 2, status.SuccessCount)
	require.NotNil(t, status.CompletedAt)

	history, err := svc.History(ctx, result.NotificationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.NotEmpty(t, history[0].DeliveryID)
}

func TestService_PerRecipientFailureIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)
	provider.failFor = map[string]string{"r2": "mailbox full"}

	result := svc.Send(ctx, testNotification(emailRecipient("r1"), emailRecipient("r2"), emailRecipient("r3")))

	// One success is enough for Delivered; the failures stay recorded.
	assert.True(t, result.Success)
	assert.Equal(t, notification.StateDelivered, result.State)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)

	history, err := svc.History(ctx, result.NotificationID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, attempt := range history {
		if attempt.RecipientID == "r2" {
			assert.False(t, attempt.IsSuccess)
			assert.Equal(t, "mailbox full", attempt.ErrorMessage)
		} else {
			assert.True(t, attempt.IsSuccess)
		}
	}
}

func TestService_NoSuitableChannelRecordsFailedAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	unreachable := notification.Recipient{ID: "ghost"}
	result := svc.Send(ctx, testNotification(unreachable))

	assert.False(t, result.Success)
	assert.Equal(t, notification.StateFailed, result.State)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].ErrorMessage, "no suitable channel")
}

func TestService_NoProviderForSelectedChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := rules.NewEngine(rules.NewMemoryStore())
	svc := dispatch.NewService(engine) // no providers registered

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))

	assert.False(t, result.Success)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].ErrorMessage, "no provider registered")
}

func TestService_ValidationFailureRecordsAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)
	provider.invalid = []string{"address bounced previously"}

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))

	assert.False(t, result.Success)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].ErrorMessage, "address bounced previously")
	assert.Empty(t, provider.sentTo)
}

func TestService_RuleEvaluationFailureIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)

	// Missing tenant makes rule evaluation fail before delivery starts.
	n := testNotification(emailRecipient("r1"))
	n.TenantID = ""
	result := svc.Send(ctx, n)

	assert.False(t, result.Success)
	assert.Equal(t, notification.StateFailed, result.State)
	assert.Contains(t, result.Message, "rule evaluation failed")
	assert.Empty(t, provider.sentTo)

	status, err := svc.Status(ctx, result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateFailed, status.State)
	assert.NotEmpty(t, status.ErrorMessage)
}

func TestService_WorkflowMutatesNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := rules.NewMemoryStore()
	engine := rules.NewEngine(store)

	_, err := store.Create(ctx, rules.Rule{
		TenantID: "acme",
		Name:     "urgent payments",
		IsActive: true,
		Condition: rules.Condition{
			FieldPath:      "EventType",
			Operator:       rules.OpEquals,
			ExpectedValues: []any{"payment.failed"},
		},
		Actions: []rules.Action{{
			Type:       rules.ActionSetPriority,
			Parameters: map[string]any{"priority": "critical"},
		}},
	})
	require.NoError(t, err)

	var got notification.Notification
	provider := &capturingProvider{channel: notification.ChannelEmail, captured: &got}
	svc := dispatch.NewService(engine, dispatch.WithProvider(provider))

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))
	assert.True(t, result.Success)
	// The matched rule raised the priority before delivery.
	assert.Equal(t, notification.PriorityCritical, got.Priority)
}

func TestService_WorkflowCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := rules.NewMemoryStore()
	engine := rules.NewEngine(store)

	_, err := store.Create(ctx, rules.Rule{
		TenantID:  "acme",
		Name:      "mute test tenant",
		IsActive:  true,
		Condition: rules.Condition{FieldPath: "TenantID", Operator: rules.OpEquals, ExpectedValues: []any{"acme"}},
		Actions:   []rules.Action{{Type: rules.ActionCancelDelivery}},
	})
	require.NoError(t, err)

	provider := &fakeProvider{channel: notification.ChannelEmail}
	svc := dispatch.NewService(engine, dispatch.WithProvider(provider))

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))

	assert.False(t, result.Success)
	assert.Equal(t, notification.StateCancelled, result.State)
	assert.Empty(t, provider.sentTo)

	status, err := svc.Status(ctx, result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateCancelled, status.State)
}

func TestService_RenderFailureIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t, dispatch.WithRenderer(fakeRenderer{fail: true}))

	n := testNotification(emailRecipient("r1"))
	n.TemplateID = "welcome-email"
	result := svc.Send(ctx, n)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "template render failed")
	assert.Empty(t, provider.sentTo)
}

func TestService_RenderReplacesSubjectAndContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var got notification.Notification
	provider := &capturingProvider{channel: notification.ChannelEmail, captured: &got}
	engine := rules.NewEngine(rules.NewMemoryStore())
	svc := dispatch.NewService(engine,
		dispatch.WithProvider(provider),
		dispatch.WithRenderer(fakeRenderer{}),
	)

	n := testNotification(emailRecipient("r1"))
	n.TemplateID = "welcome-email"
	result := svc.Send(ctx, n)

	assert.True(t, result.Success)
	assert.Equal(t, "rendered subject", got.Subject)
	assert.Equal(t, "rendered content", got.Content)
}

type capturingProvider struct {
	channel  notification.Channel
	captured *notification.Notification
}

func (p *capturingProvider) Channel() notification.Channel { return p.channel }

func (p *capturingProvider) Validate(context.Context, notification.Notification, notification.Recipient) dispatch.ValidationResult {
	return dispatch.ValidationResult{IsValid: true}
}

func (p *capturingProvider) Send(_ context.Context, n notification.Notification, _ notification.Recipient) (dispatch.ProviderResult, error) {
	*p.captured = n
	return dispatch.ProviderResult{Success: true, DeliveryID: "d-1"}, nil
}

func TestService_ProviderPanicBecomesFailedResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)
	provider.panicFor = map[string]bool{"r1": true}

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))

	assert.False(t, result.Success)
	assert.Equal(t, notification.StateFailed, result.State)
	assert.Contains(t, result.Message, "internal error")
}

func TestService_ContextCancellationAbortsPipeline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc, provider := newTestService(t)
	result := svc.Send(ctx, testNotification(emailRecipient("r1")))

	assert.False(t, result.Success)
	assert.Equal(t, notification.StateCancelled, result.State)
	assert.Empty(t, provider.sentTo)
}

func TestService_SendBatchPartialFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t, dispatch.WithBatchConcurrency(4))

	batch := make([]notification.Notification, 0, 10)
	for i := 0; i < 7; i++ {
		batch = append(batch, testNotification(emailRecipient(fmt.Sprintf("ok-%d", i))))
	}
	for i := 0; i < 3; i++ {
		// Missing tenant fails rule evaluation for these three.
		broken := testNotification(emailRecipient(fmt.Sprintf("bad-%d", i)))
		broken.TenantID = ""
		batch = append(batch, broken)
	}

	result := svc.SendBatch(ctx, batch)

	assert.Equal(t, dispatch.BatchPartialFailure, result.Status)
	assert.Equal(t, 7, result.SuccessCount)
	assert.Equal(t, 3, result.FailureCount)
	require.Len(t, result.Results, 10)
	// Results keep input order.
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[9].Success)
}

func TestService_SendBatchAllOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	ok := svc.SendBatch(ctx, []notification.Notification{
		testNotification(emailRecipient("r1")),
		testNotification(emailRecipient("r2")),
	})
	assert.Equal(t, dispatch.BatchAllSuccessful, ok.Status)

	broken := testNotification(emailRecipient("r1"))
	broken.TenantID = ""
	failed := svc.SendBatch(ctx, []notification.Notification{broken})
	assert.Equal(t, dispatch.BatchAllFailed, failed.Status)
}

func TestService_SchedulePastDeliversImmediately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)

	result := svc.Schedule(ctx, testNotification(emailRecipient("r1")), time.Now().Add(-time.Minute))

	assert.True(t, result.Success)
	assert.Equal(t, notification.StateDelivered, result.State)
	assert.Equal(t, []string{"r1"}, provider.sentTo)
}

func TestService_ScheduleFutureAndDispatchDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc, provider := newTestService(t, dispatch.WithServiceClock(func() time.Time { return clock }))

	result := svc.Schedule(ctx, testNotification(emailRecipient("r1")), now.Add(time.Hour))
	require.True(t, result.Success)
	assert.Equal(t, notification.StateScheduled, result.State)
	assert.Empty(t, provider.sentTo)

	// Not due yet.
	sweep := svc.DispatchDue(ctx)
	assert.Empty(t, sweep.Results)

	// Due after the clock advances.
	clock = now.Add(2 * time.Hour)
	sweep = svc.DispatchDue(ctx)
	require.Len(t, sweep.Results, 1)
	assert.Equal(t, dispatch.BatchAllSuccessful, sweep.Status)
	assert.Equal(t, []string{"r1"}, provider.sentTo)

	// Delivered notifications leave the schedule.
	sweep = svc.DispatchDue(ctx)
	assert.Empty(t, sweep.Results)
}

func TestService_CancelOnlyBeforeProcessing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	scheduled := svc.Schedule(ctx, testNotification(emailRecipient("r1")), time.Now().Add(time.Hour))
	require.NoError(t, svc.Cancel(ctx, scheduled.NotificationID))

	status, err := svc.Status(ctx, scheduled.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateCancelled, status.State)

	delivered := svc.Send(ctx, testNotification(emailRecipient("r2")))
	err = svc.Cancel(ctx, delivered.NotificationID)
	assert.ErrorIs(t, err, dispatch.ErrInvalidStateTransition)

	assert.ErrorIs(t, svc.Cancel(ctx, "ghost"), dispatch.ErrStatusNotFound)
}

func TestService_RetryTargetsFailedRecipients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)
	provider.failFor = map[string]string{"r1": "down", "r2": "down"}

	result := svc.Send(ctx, testNotification(emailRecipient("r1"), emailRecipient("r2")))
	require.Equal(t, notification.StateFailed, result.State)

	// The outage clears for r1 only.
	provider.mu.Lock()
	provider.failFor = map[string]string{"r2": "still down"}
	provider.sentTo = nil
	provider.mu.Unlock()

	retried, err := svc.Retry(ctx, result.NotificationID)
	require.NoError(t, err)
	assert.True(t, retried.Success)
	assert.ElementsMatch(t, []string{"r1", "r2"}, provider.sentTo)
	assert.Equal(t, 1, retried.SuccessCount)
	assert.Equal(t, 1, retried.FailureCount)
}

func TestService_RetryOnlyFromFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	delivered := svc.Send(ctx, testNotification(emailRecipient("r1")))
	_, err := svc.Retry(ctx, delivered.NotificationID)
	assert.ErrorIs(t, err, dispatch.ErrInvalidStateTransition)

	_, err = svc.Retry(ctx, "ghost")
	assert.ErrorIs(t, err, dispatch.ErrStatusNotFound)
}

func TestService_AcknowledgeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	delivered := svc.Send(ctx, testNotification(emailRecipient("r1")))
	require.NoError(t, svc.Acknowledge(ctx, delivered.NotificationID, "ops@acme.test"))

	status, err := svc.Status(ctx, delivered.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateAcknowledged, status.State)
	assert.Equal(t, "ops@acme.test", status.AcknowledgedBy)

	// Second acknowledgment is a no-op success keeping the first actor.
	require.NoError(t, svc.Acknowledge(ctx, delivered.NotificationID, "someone-else"))
	status, err = svc.Status(ctx, delivered.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "ops@acme.test", status.AcknowledgedBy)
}

func TestService_AcknowledgeInvalidFromScheduled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	scheduled := svc.Schedule(ctx, testNotification(emailRecipient("r1")), time.Now().Add(time.Hour))
	err := svc.Acknowledge(ctx, scheduled.NotificationID, "ops")
	assert.ErrorIs(t, err, dispatch.ErrInvalidStateTransition)
}

func TestService_SendRejectsSettledNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, provider := newTestService(t)

	delivered := svc.Send(ctx, testNotification(emailRecipient("r1")))
	require.True(t, delivered.Success)

	// Re-sending a Delivered id is refused and leaves the status alone.
	repeat := testNotification(emailRecipient("r1"))
	repeat.ID = delivered.NotificationID
	again := svc.Send(ctx, repeat)
	assert.False(t, again.Success)
	assert.Equal(t, notification.StateDelivered, again.State)
	assert.Contains(t, again.Message, "cannot send")
	assert.Equal(t, []string{"r1"}, provider.sentTo)

	status, err := svc.Status(ctx, delivered.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StateDelivered, status.State)

	// Same for Cancelled.
	scheduled := svc.Schedule(ctx, testNotification(emailRecipient("r2")), time.Now().Add(time.Hour))
	require.NoError(t, svc.Cancel(ctx, scheduled.NotificationID))
	cancelled := testNotification(emailRecipient("r2"))
	cancelled.ID = scheduled.NotificationID
	again = svc.Send(ctx, cancelled)
	assert.False(t, again.Success)
	assert.Equal(t, notification.StateCancelled, again.State)

	// And Acknowledged.
	require.NoError(t, svc.Acknowledge(ctx, delivered.NotificationID, "ops"))
	again = svc.Send(ctx, repeat)
	assert.False(t, again.Success)
	assert.Equal(t, notification.StateAcknowledged, again.State)

	// Failed ids still re-enter the pipeline through Retry.
	provider.failFor = map[string]string{"r3": "down"}
	failed := svc.Send(ctx, testNotification(emailRecipient("r3")))
	require.Equal(t, notification.StateFailed, failed.State)
	provider.failFor = nil
	retried, err := svc.Retry(ctx, failed.NotificationID)
	require.NoError(t, err)
	assert.True(t, retried.Success)
}

func TestService_FailedSendIsDeadLettered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dlq := deadletter.NewStore()
	svc, provider := newTestService(t, dispatch.WithDeadLetter(dlq))
	provider.sendErr = errors.New("gateway unreachable")

	result := svc.Send(ctx, testNotification(emailRecipient("r1")))
	require.Equal(t, notification.StateFailed, result.State)

	rec, err := dlq.Get(ctx, result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "delivery_failed", rec.FailureReason)
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, int64(1), dlq.Stats().TotalFailed)
}

func TestService_CriticalFailureTriggersEscalation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	escalator := &fakeEscalator{}
	svc, provider := newTestService(t, dispatch.WithEscalationExecutor(escalator))
	provider.failFor = map[string]string{"r1": "down"}

	n := testNotification(emailRecipient("r1"))
	n.Priority = notification.PriorityCritical
	n.DeliveryOptions = notification.DeliveryOptions{
		EnableEscalation:   true,
		EscalationChannels: []notification.Channel{notification.ChannelSlack},
	}

	result := svc.Send(ctx, n)
	require.Equal(t, notification.StateFailed, result.State)

	require.Len(t, escalator.actions, 2)
	assert.Equal(t, rules.EscalationSendToChannel, escalator.actions[0].Type)
	assert.Equal(t, notification.ChannelSlack, escalator.actions[0].Channel)
	assert.Equal(t, rules.EscalationNotifyOnCall, escalator.actions[1].Type)
}

func TestService_NormalFailureBelowBudgetDoesNotEscalate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	escalator := &fakeEscalator{}
	svc, provider := newTestService(t, dispatch.WithEscalationExecutor(escalator))
	provider.failFor = map[string]string{"r1": "down"}

	n := testNotification(emailRecipient("r1"))
	n.DeliveryOptions = notification.DeliveryOptions{
		EnableEscalation: true,
		MaxAttempts:      3,
	}

	result := svc.Send(ctx, n)
	require.Equal(t, notification.StateFailed, result.State)
	assert.Empty(t, escalator.actions)
}
