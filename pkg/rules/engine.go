package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Engine owns the rule store for all tenants: it evaluates active rules
// against incoming notifications, executes the workflow actions of
// matched rules, and computes escalation decisions from delivery
// outcomes.
type Engine struct {
	store     Store
	evaluator *Evaluator
	handlers  map[ActionType]ActionHandler
	webhook   WebhookExecutor
	logger    *slog.Logger
	clock     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(ev *Evaluator) EngineOption {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithWebhookExecutor wires the external webhook collaborator used by
// execute_webhook actions.
func WithWebhookExecutor(exec WebhookExecutor) EngineOption {
	return func(e *Engine) {
		e.webhook = exec
	}
}

// WithActionHandler registers or replaces a workflow action handler,
// which is how hosts plug in real implementations for custom actions.
func WithActionHandler(h ActionHandler) EngineOption {
	return func(e *Engine) {
		if h != nil {
			e.handlers[h.Type()] = h
		}
	}
}

// NewEngine creates a rule engine backed by the given store. All built-in
// action handlers are registered; options may override them.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		handlers: make(map[ActionType]ActionHandler),
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = NewEvaluator(WithEvaluatorLogger(e.logger))
	}
	// Built-in handlers fill the gaps options left, so custom handlers
	// registered above always win.
	for t, h := range defaultHandlers(e.logger, func() time.Time { return e.clock() }, e.webhook) {
		if _, ok := e.handlers[t]; !ok {
			e.handlers[t] = h
		}
	}
	return e
}

// Store exposes rule CRUD for the hosting service.
func (e *Engine) Store() Store {
	return e.store
}

// Evaluate loads the tenant's active rules and splits them into matched
// and unmatched sets. Matched rules are ordered by priority descending
// with insertion order breaking ties. Per-rule evaluation errors are
// logged and treated as non-matches; a store failure is the only error
// surfaced.
func (e *Engine) Evaluate(ctx context.Context, n *notification.Notification) (matched, unmatched []Rule, err error) {
	if n == nil {
		return nil, nil, errors.New("notification is nil")
	}
	if n.TenantID == "" {
		return nil, nil, ErrMissingTenant
	}

	all, err := e.store.List(ctx, n.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules for tenant %s: %w", n.TenantID, err)
	}

	for _, rule := range all {
		if !rule.IsActive {
			continue
		}
		if e.matches(rule, n) {
			matched = append(matched, rule)
		} else {
			unmatched = append(unmatched, rule)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched, unmatched, nil
}

// matches evaluates one rule, converting panics into non-matches so a
// misbehaving rule cannot abort evaluation of the others.
func (e *Engine) matches(rule Rule, n *notification.Notification) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked, treating as non-match",
				logger.TenantID(rule.TenantID),
				logger.RuleID(rule.ID),
				slog.Any("panic", r),
			)
			result = false
		}
	}()
	return e.evaluator.Evaluate(rule.Condition, n)
}

// WorkflowResult is the outcome of processing matched rules against one
// notification.
type WorkflowResult struct {
	// Notification carries the final state after all mutations.
	Notification notification.Notification
	// Executed lists actions that ran successfully, in execution order.
	Executed []ActionExecution
	// Failed lists actions that ran and failed.
	Failed []ActionExecution
	// Success is true iff no failed action had ContinueOnFailure=false.
	Success bool
	// Err is set only for workflow-fatal conditions such as cancellation.
	Err error
}

// ProcessWorkflow executes the matched rules' actions in priority order,
// threading the possibly-mutated notification forward between actions.
// An action failure stops the remaining actions of its own rule when
// ContinueOnFailure is false; later rules still run.
func (e *Engine) ProcessWorkflow(ctx context.Context, n notification.Notification, matched []Rule) WorkflowResult {
	result := WorkflowResult{Notification: n, Success: true}

	ordered := append([]Rule(nil), matched...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, rule := range ordered {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Err = err
			return result
		}

		for _, action := range rule.Actions {
			if err := ctx.Err(); err != nil {
				result.Success = false
				result.Err = err
				return result
			}

			mutated, execution := e.executeAction(ctx, rule, action, result.Notification)
			if execution.Success {
				result.Notification = mutated
				result.Executed = append(result.Executed, execution)
				continue
			}

			result.Failed = append(result.Failed, execution)
			e.logger.Warn("workflow action failed",
				logger.TenantID(rule.TenantID),
				logger.RuleID(rule.ID),
				slog.String("action_type", string(action.Type)),
				slog.String("error", execution.ErrorMessage),
				slog.Bool("continue_on_failure", action.ContinueOnFailure),
			)
			if !action.ContinueOnFailure {
				result.Success = false
				break // Remaining actions of this rule only; next rule still runs.
			}
		}
	}

	return result
}

// executeAction runs one action with panic recovery and the action's
// optional retry policy.
func (e *Engine) executeAction(ctx context.Context, rule Rule, action Action, current notification.Notification) (notification.Notification, ActionExecution) {
	execution := ActionExecution{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Action:    action,
		StartedAt: e.clock(),
	}

	handler, ok := e.handlers[action.Type]
	if !ok {
		execution.Executed = false
		execution.ErrorMessage = fmt.Sprintf("%v: %s", ErrNoHandler, action.Type)
		execution.CompletedAt = e.clock()
		return current, execution
	}

	mutated, err := e.runHandler(ctx, handler, current, action.Parameters)
	if err != nil && action.Retry != nil {
		for attempt := 1; attempt <= action.Retry.MaxRetryAttempts && err != nil; attempt++ {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(action.Retry.NextDelay(attempt)):
				mutated, err = e.runHandler(ctx, handler, current, action.Parameters)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
		}
	}

	execution.Executed = true
	execution.CompletedAt = e.clock()
	execution.Duration = execution.CompletedAt.Sub(execution.StartedAt)
	if err != nil {
		execution.ErrorMessage = err.Error()
		return current, execution
	}
	execution.Success = true
	return mutated, execution
}

// runHandler isolates handler panics: a broken handler yields a failure
// result instead of tearing down workflow processing.
func (e *Engine) runHandler(ctx context.Context, handler ActionHandler, n notification.Notification, params map[string]any) (out notification.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = n
			err = fmt.Errorf("action handler panicked: %v", r)
		}
	}()
	return handler.Execute(ctx, n, params)
}
