package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/deadletter"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
)

// Service is the delivery orchestrator: rule evaluation, workflow
// mutation, template render, per-recipient channel selection and
// provider dispatch, status and history bookkeeping, and the escalation
// check. Safe for concurrent use.
type Service struct {
	engine     *rules.Engine
	providers  map[notification.Channel]Provider
	renderer   Renderer
	statuses   StatusStore
	history    HistoryStore
	deadLetter *deadletter.Store
	escalator  EscalationExecutor
	audit      AuditSink
	log        *slog.Logger
	clock      func() time.Time
	batchLimit int

	mu        sync.RWMutex
	snapshots map[string]notification.Notification
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithProvider registers a channel provider. Later registrations for the
// same channel win.
func WithProvider(p Provider) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.providers[p.Channel()] = p
		}
	}
}

// WithRenderer sets the external template renderer.
func WithRenderer(r Renderer) ServiceOption {
	return func(s *Service) { s.renderer = r }
}

// WithStatusStore overrides the status store. Defaults to in-memory.
func WithStatusStore(store StatusStore) ServiceOption {
	return func(s *Service) {
		if store != nil {
			s.statuses = store
		}
	}
}

// WithHistoryStore overrides the delivery history store. Defaults to
// in-memory.
func WithHistoryStore(store HistoryStore) ServiceOption {
	return func(s *Service) {
		if store != nil {
			s.history = store
		}
	}
}

// WithDeadLetter wires a dead-letter store; failed sends are captured
// into it.
func WithDeadLetter(store *deadletter.Store) ServiceOption {
	return func(s *Service) { s.deadLetter = store }
}

// WithEscalationExecutor wires an executor for escalation actions decided
// after failed deliveries.
func WithEscalationExecutor(exec EscalationExecutor) ServiceOption {
	return func(s *Service) { s.escalator = exec }
}

// WithAuditSink overrides the audit sink. Defaults to structured logging.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithServiceLogger sets the orchestrator logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServiceClock overrides the time source. Intended for tests.
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBatchConcurrency bounds batch fan-out. Defaults to the number of
// logical CPUs.
func WithBatchConcurrency(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.batchLimit = limit
		}
	}
}

// NewService creates a delivery orchestrator around a rule engine.
func NewService(engine *rules.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:     engine,
		providers:  make(map[notification.Channel]Provider),
		statuses:   NewMemoryStatusStore(),
		history:    NewMemoryHistoryStore(),
		log:        slog.Default(),
		clock:      time.Now,
		batchLimit: runtime.NumCPU(),
		snapshots:  make(map[string]notification.Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = firstAudit(s.audit, slogAuditSink{log: s.log})
	return s
}

func firstAudit(sinks ...AuditSink) AuditSink {
	for _, sink := range sinks {
		if sink != nil {
			return sink
		}
	}
	return nil
}

// Status returns the current processing record for a notification.
func (s *Service) Status(ctx context.Context, notificationID string) (notification.Status, error) {
	return s.statuses.Get(ctx, notificationID)
}

// History returns the notification's delivery attempts ordered by
// AttemptedAt.
func (s *Service) History(ctx context.Context, notificationID string) ([]notification.DeliveryAttempt, error) {
	return s.history.List(ctx, notificationID)
}

// Send runs the full delivery pipeline for one notification. The returned
// Result always describes the outcome; errors from collaborators and even
// panics are converted into a Failed result, never propagated.
func (s *Service) Send(ctx context.Context, n notification.Notification) (result Result) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "send pipeline panicked",
				logger.NotificationID(n.ID),
				slog.Any("panic", r),
			)
			result = s.fail(ctx, n, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// A settled notification stays settled: re-sending an id whose status
	// is already Cancelled, Delivered, or Acknowledged must not reset it
	// to Processing. Failed, Pending, and Scheduled re-enter normally.
	if existing, err := s.statuses.Get(ctx, n.ID); err == nil &&
		existing.State != notification.StateProcessing &&
		!existing.State.CanTransitionTo(notification.StateProcessing) {
		return Result{
			NotificationID: n.ID,
			Success:        false,
			State:          existing.State,
			Message:        fmt.Sprintf("cannot send from %s state", existing.State),
		}
	}

	s.rememberSnapshot(n)

	now := s.clock()
	_ = s.statuses.Create(ctx, notification.Status{
		NotificationID: n.ID,
		State:          notification.StateProcessing,
		Progress:       notification.ProgressStarted,
		CreatedAt:      now,
	})

	// Stage 1: rule evaluation. A broken rule engine must not silently
	// deliver, so a store-level failure aborts the send.
	if cancelled, res := s.checkCancelled(ctx, n); cancelled {
		return res
	}
	matched, _, err := s.engine.Evaluate(ctx, &n)
	if err != nil {
		return s.fail(ctx, n, fmt.Sprintf("rule evaluation failed: %v", err))
	}

	// Stage 2: workflow mutation.
	if cancelled, res := s.checkCancelled(ctx, n); cancelled {
		return res
	}
	if len(matched) > 0 {
		workflow := s.engine.ProcessWorkflow(ctx, n, matched)
		if workflow.Err != nil {
			return s.fail(ctx, n, fmt.Sprintf("workflow processing failed: %v", workflow.Err))
		}
		if !workflow.Success {
			return s.fail(ctx, n, workflowFailureMessage(workflow))
		}
		n = workflow.Notification
		s.rememberSnapshot(n)

		if requested, _ := n.MetadataValue(rules.MetaCancelRequested); requested == true {
			return s.cancelledByWorkflow(ctx, n)
		}
	}
	s.progress(ctx, n.ID, notification.ProgressWorkflow)

	// Stage 3: template render.
	if cancelled, res := s.checkCancelled(ctx, n); cancelled {
		return res
	}
	if n.TemplateID != "" && s.renderer != nil {
		rendered := s.renderer.Render(ctx, n, n.TemplateID)
		if !rendered.Success {
			return s.fail(ctx, n, fmt.Sprintf("template render failed: %s", rendered.Error))
		}
		n = n.WithSubject(rendered.RenderedSubject).WithContent(rendered.RenderedContent)
	}
	s.progress(ctx, n.ID, notification.ProgressRendered)

	// Stage 4: per-recipient delivery. Failures stay per-recipient.
	if cancelled, res := s.checkCancelled(ctx, n); cancelled {
		return res
	}
	attempts := s.deliverToRecipients(ctx, n)

	return s.finish(ctx, n, attempts)
}

// SendBatch fans notifications out with bounded concurrency and
// aggregates per-item results in input order.
func (s *Service) SendBatch(ctx context.Context, notifications []notification.Notification) BatchResult {
	results := make([]Result, len(notifications))
	gate := make(chan struct{}, s.batchLimit)

	var wg sync.WaitGroup
	for i, n := range notifications {
		wg.Add(1)
		go func(i int, n notification.Notification) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()
			results[i] = s.Send(ctx, n)
		}(i, n)
	}
	wg.Wait()

	batch := summarizeBatch(results)
	s.log.InfoContext(ctx, "batch send completed",
		slog.String("status", string(batch.Status)),
		slog.Int("success_count", batch.SuccessCount),
		slog.Int("failure_count", batch.FailureCount),
	)
	return batch
}

// Schedule delivers immediately when at is now or past; otherwise records
// the notification as Scheduled for a later sweep.
func (s *Service) Schedule(ctx context.Context, n notification.Notification, at time.Time) Result {
	if !at.After(s.clock()) {
		return s.Send(ctx, n)
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n = n.WithScheduledFor(at)
	s.rememberSnapshot(n)

	_ = s.statuses.Create(ctx, notification.Status{
		NotificationID: n.ID,
		State:          notification.StateScheduled,
		Progress:       notification.ProgressStarted,
	})

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.scheduled",
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Details:        map[string]any{"scheduled_for": at},
	})
	return Result{
		NotificationID: n.ID,
		Success:        true,
		State:          notification.StateScheduled,
		Message:        "scheduled for " + at.Format(time.RFC3339),
	}
}

// Cancel stops a notification that has not started processing. Allowed
// only from Pending or Scheduled.
func (s *Service) Cancel(ctx context.Context, notificationID string) error {
	var denied notification.State
	_, err := s.statuses.Update(ctx, notificationID, func(status *notification.Status) {
		if status.State != notification.StatePending && status.State != notification.StateScheduled {
			denied = status.State
			return
		}
		status.State = notification.StateCancelled
		completed := s.clock()
		status.CompletedAt = &completed
	})
	if err != nil {
		return err
	}
	if denied != "" {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidStateTransition, denied)
	}

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.cancelled",
		NotificationID: notificationID,
	})
	return nil
}

// Retry re-enters the send pipeline for a Failed notification, targeting
// only the recipients whose previous attempts all failed.
func (s *Service) Retry(ctx context.Context, notificationID string) (Result, error) {
	status, err := s.statuses.Get(ctx, notificationID)
	if err != nil {
		return Result{}, err
	}
	if status.State != notification.StateFailed {
		return Result{}, fmt.Errorf("%w: cannot retry from %s", ErrInvalidStateTransition, status.State)
	}

	n, ok := s.snapshot(notificationID)
	if !ok {
		return Result{}, ErrNotificationNotFound
	}

	if failed := s.failedRecipientIDs(ctx, notificationID); len(failed) > 0 {
		kept := make([]notification.Recipient, 0, len(failed))
		for _, r := range n.Recipients {
			if _, ok := failed[r.ID]; ok {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			n = n.WithRecipients(kept)
		}
	}

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.retried",
		NotificationID: notificationID,
		TenantID:       n.TenantID,
	})
	return s.Send(ctx, n), nil
}

// Acknowledge marks the notification acknowledged by an actor.
// Acknowledging an already acknowledged notification is a no-op success.
func (s *Service) Acknowledge(ctx context.Context, notificationID, by string) error {
	var denied notification.State
	_, err := s.statuses.Update(ctx, notificationID, func(status *notification.Status) {
		if status.State == notification.StateAcknowledged {
			return
		}
		if !status.State.CanTransitionTo(notification.StateAcknowledged) {
			denied = status.State
			return
		}
		status.State = notification.StateAcknowledged
		status.AcknowledgedBy = by
	})
	if err != nil {
		return err
	}
	if denied != "" {
		return fmt.Errorf("%w: cannot acknowledge from %s", ErrInvalidStateTransition, denied)
	}

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.acknowledged",
		NotificationID: notificationID,
		Actor:          by,
	})
	return nil
}

// DispatchDue sends every Scheduled notification whose time has arrived.
// Invoked by the scheduler sweep; safe to call manually.
func (s *Service) DispatchDue(ctx context.Context) BatchResult {
	statuses, err := s.statuses.List(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to list statuses for due sweep", logger.Error(err))
		return BatchResult{Status: BatchAllFailed}
	}

	now := s.clock()
	var due []notification.Notification
	for _, status := range statuses {
		if status.State != notification.StateScheduled {
			continue
		}
		n, ok := s.snapshot(status.NotificationID)
		if !ok || !n.IsDue(now) {
			continue
		}
		due = append(due, n)
	}
	if len(due) == 0 {
		return BatchResult{Status: BatchAllSuccessful}
	}
	return s.SendBatch(ctx, due)
}

// deliverToRecipients runs channel selection, validation, and provider
// dispatch for each recipient sequentially, preserving attempt order.
func (s *Service) deliverToRecipients(ctx context.Context, n notification.Notification) []notification.DeliveryAttempt {
	attempts := make([]notification.DeliveryAttempt, 0, len(n.Recipients))
	for _, recipient := range n.Recipients {
		if ctx.Err() != nil {
			break
		}
		attempts = append(attempts, s.deliverToRecipient(ctx, n, recipient))
	}
	return attempts
}

func (s *Service) deliverToRecipient(ctx context.Context, n notification.Notification, r notification.Recipient) notification.DeliveryAttempt {
	now := s.clock()
	attempt := notification.DeliveryAttempt{
		NotificationID: n.ID,
		RecipientID:    r.ID,
		AttemptedAt:    now,
		CompletedAt:    now,
	}

	channel, ok := SelectChannel(n, r)
	if !ok {
		attempt.ErrorMessage = ErrNoSuitableChannel.Error()
		return attempt
	}
	attempt.Channel = channel

	provider, ok := s.providers[channel]
	if !ok {
		attempt.ErrorMessage = fmt.Sprintf("%s: %s", ErrNoProvider, channel)
		return attempt
	}

	if validation := provider.Validate(ctx, n, r); !validation.IsValid {
		attempt.ErrorMessage = "validation failed: " + strings.Join(validation.Errors, "; ")
		return attempt
	}

	sent, err := provider.Send(ctx, n, r)
	attempt.CompletedAt = s.clock()
	if err != nil {
		attempt.ErrorMessage = err.Error()
		return attempt
	}
	if !sent.AttemptedAt.IsZero() {
		attempt.AttemptedAt = sent.AttemptedAt
	}
	if !sent.CompletedAt.IsZero() {
		attempt.CompletedAt = sent.CompletedAt
	}
	attempt.IsSuccess = sent.Success
	attempt.DeliveryID = sent.DeliveryID
	attempt.ErrorMessage = sent.Error
	return attempt
}

// finish persists attempts, settles the final state, and kicks off
// dead-letter capture and the escalation check on failure.
func (s *Service) finish(ctx context.Context, n notification.Notification, attempts []notification.DeliveryAttempt) Result {
	if err := s.history.Append(ctx, n.ID, attempts...); err != nil {
		s.log.ErrorContext(ctx, "failed to append delivery history",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}

	successes, failures := 0, 0
	for _, attempt := range attempts {
		if attempt.IsSuccess {
			successes++
		} else {
			failures++
		}
	}

	state := notification.StateFailed
	if successes > 0 {
		state = notification.StateDelivered
	}
	message := fmt.Sprintf("delivered to %d of %d recipients", successes, len(attempts))
	if state == notification.StateFailed {
		message = "all deliveries failed"
		if len(attempts) == 0 {
			message = ErrMissingRecipients.Error()
		}
	}

	completed := s.clock()
	_, _ = s.statuses.Update(ctx, n.ID, func(status *notification.Status) {
		status.State = state
		status.Progress = notification.ProgressCompleted
		status.AttemptCount += len(attempts)
		status.SuccessCount += successes
		status.FailureCount += failures
		status.CompletedAt = &completed
		if state == notification.StateFailed {
			status.ErrorMessage = message
		}
	})

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.sent",
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Details: map[string]any{
			"state":         string(state),
			"success_count": successes,
			"failure_count": failures,
		},
	})

	if state == notification.StateFailed {
		s.handleDeliveryFailure(ctx, n, attempts, message)
	}

	return Result{
		NotificationID: n.ID,
		Success:        state == notification.StateDelivered,
		State:          state,
		Message:        message,
		Attempts:       attempts,
		SuccessCount:   successes,
		FailureCount:   failures,
	}
}

func (s *Service) handleDeliveryFailure(ctx context.Context, n notification.Notification, attempts []notification.DeliveryAttempt, message string) {
	if s.deadLetter != nil {
		if err := s.deadLetter.Capture(ctx, n, "delivery_failed", errors.New(message)); err != nil {
			s.log.ErrorContext(ctx, "failed to dead-letter notification",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
		}
	}

	decision := s.engine.CheckEscalation(n, attempts)
	if !decision.ShouldEscalate {
		return
	}
	s.log.WarnContext(ctx, "delivery failure escalated",
		logger.NotificationID(n.ID),
		logger.TenantID(n.TenantID),
		slog.String("reason", decision.Reason),
		slog.Int("action_count", len(decision.Actions)),
	)
	if s.escalator == nil {
		return
	}
	if err := s.escalator.Escalate(ctx, n, decision.Actions); err != nil {
		s.log.ErrorContext(ctx, "escalation executor failed",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

// fail settles the notification as Failed with a message and returns the
// matching result.
func (s *Service) fail(ctx context.Context, n notification.Notification, message string) Result {
	completed := s.clock()
	_, _ = s.statuses.Update(ctx, n.ID, func(status *notification.Status) {
		status.State = notification.StateFailed
		status.ErrorMessage = message
		status.CompletedAt = &completed
	})

	s.log.ErrorContext(ctx, "notification send failed",
		logger.NotificationID(n.ID),
		logger.TenantID(n.TenantID),
		slog.String("message", message),
	)

	if s.deadLetter != nil {
		if err := s.deadLetter.Capture(ctx, n, "pipeline_failed", errors.New(message)); err != nil {
			s.log.ErrorContext(ctx, "failed to dead-letter notification",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
		}
	}

	return Result{
		NotificationID: n.ID,
		Success:        false,
		State:          notification.StateFailed,
		Message:        message,
	}
}

// checkCancelled aborts the pipeline with a Cancelled state when the
// context has been cancelled. Each stage boundary checks before starting
// external work.
func (s *Service) checkCancelled(ctx context.Context, n notification.Notification) (bool, Result) {
	if err := ctx.Err(); err == nil {
		return false, Result{}
	}

	completed := s.clock()
	_, _ = s.statuses.Update(ctx, n.ID, func(status *notification.Status) {
		if status.State.CanTransitionTo(notification.StateCancelled) {
			status.State = notification.StateCancelled
			status.CompletedAt = &completed
		}
	})
	return true, Result{
		NotificationID: n.ID,
		Success:        false,
		State:          notification.StateCancelled,
		Message:        "cancelled: " + ctx.Err().Error(),
	}
}

// cancelledByWorkflow settles a notification a workflow rule cancelled.
func (s *Service) cancelledByWorkflow(ctx context.Context, n notification.Notification) Result {
	completed := s.clock()
	_, _ = s.statuses.Update(ctx, n.ID, func(status *notification.Status) {
		status.State = notification.StateCancelled
		status.CompletedAt = &completed
	})

	s.recordAudit(ctx, AuditEvent{
		Action:         "notification.cancelled",
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Details:        map[string]any{"source": "workflow"},
	})
	return Result{
		NotificationID: n.ID,
		Success:        false,
		State:          notification.StateCancelled,
		Message:        "cancelled by workflow rule",
	}
}

func (s *Service) progress(ctx context.Context, notificationID string, progress int) {
	_, _ = s.statuses.Update(ctx, notificationID, func(status *notification.Status) {
		status.Progress = progress
	})
}

func (s *Service) recordAudit(ctx context.Context, event AuditEvent) {
	event.OccurredAt = s.clock()
	if err := s.audit.Record(ctx, event); err != nil {
		s.log.WarnContext(ctx, "audit sink failed", logger.Error(err))
	}
}

func (s *Service) rememberSnapshot(n notification.Notification) {
	s.mu.Lock()
	s.snapshots[n.ID] = n.Clone()
	s.mu.Unlock()
}

func (s *Service) snapshot(notificationID string) (notification.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.snapshots[notificationID]
	if !ok {
		return notification.Notification{}, false
	}
	return n.Clone(), true
}

// failedRecipientIDs returns recipients whose recorded attempts never
// succeeded. An empty map means no history, in which case a retry
// targets everyone.
func (s *Service) failedRecipientIDs(ctx context.Context, notificationID string) map[string]struct{} {
	attempts, err := s.history.List(ctx, notificationID)
	if err != nil || len(attempts) == 0 {
		return nil
	}

	succeeded := make(map[string]struct{})
	for _, attempt := range attempts {
		if attempt.IsSuccess {
			succeeded[attempt.RecipientID] = struct{}{}
		}
	}

	failed := make(map[string]struct{})
	for _, attempt := range attempts {
		if attempt.RecipientID == "" || attempt.IsSuccess {
			continue
		}
		if _, ok := succeeded[attempt.RecipientID]; ok {
			continue
		}
		failed[attempt.RecipientID] = struct{}{}
	}
	return failed
}

func workflowFailureMessage(workflow rules.WorkflowResult) string {
	for _, failure := range workflow.Failed {
		if !failure.Action.ContinueOnFailure {
			return fmt.Sprintf("workflow action %s failed: %s", failure.Action.Type, failure.ErrorMessage)
		}
	}
	return "workflow processing failed"
}
