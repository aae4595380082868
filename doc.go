// Package notifykit provides a multi-tenant notification orchestration
// engine for Go services.
//
// NotifyKit is a library, not a service: a host application wires in its
// own channel providers, template renderer, and stores, and drives the
// pipeline in-process. The engine covers rule-based routing, workflow
// mutation, channel selection, delivery orchestration, dead-letter retry,
// and channel failover.
//
// Key Features:
//
//   - Condition engine with composite And/Or/Not rules over notification
//     fields and metadata
//   - Workflow actions that mutate notifications copy-on-write (priority,
//     recipients, channels, delays, cancellation)
//   - Delivery orchestration with per-recipient isolation, batch fan-out,
//     scheduling, retry, and acknowledgment
//   - Dead-letter capture with exponential backoff retry budgets
//   - Per-tenant channel failover chains
//
// Packages:
//
//   - pkg/notification — core value types: Notification, Recipient,
//     Channel, Priority, Status, DeliveryAttempt
//   - pkg/rules        — condition evaluator, rule engine, workflow
//     processing, escalation
//   - pkg/dispatch     — the delivery orchestrator and its collaborator
//     contracts
//   - pkg/deadletter   — failed-notification capture and backoff retry
//   - pkg/failover     — per-tenant fallback channel chains
//   - pkg/fieldpath    — field path resolution for rule conditions
//   - pkg/logger       — slog-based structured logging helpers
//   - pkg/config       — env-based configuration loading
//
// Basic Usage:
//
//	engine := rules.NewEngine(rules.NewMemoryStore())
//	svc := dispatch.NewService(engine,
//	    dispatch.WithProvider(emailProvider),
//	    dispatch.WithDeadLetter(deadletter.NewStore()),
//	)
//
//	result := svc.Send(ctx, notification.Notification{
//	    TenantID:   "acme",
//	    EventType:  "payment.failed",
//	    Priority:   notification.PriorityHigh,
//	    Subject:    "Payment failed",
//	    Recipients: recipients,
//	})
package notifykit
