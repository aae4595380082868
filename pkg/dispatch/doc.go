// Package dispatch is the delivery orchestrator: the top-level pipeline
// that takes a notification from rule evaluation through workflow
// mutation, template rendering, per-recipient channel selection, and
// provider dispatch, with status and delivery history bookkeeping.
//
// The package is organised around the Service plus small collaborator
// contracts implemented by the host:
//
//   - Provider   — delivers on one channel (SMTP, SMS gateway, push, ...)
//   - Renderer   — resolves a template id into final subject and content
//   - AuditSink  — receives structured audit events, fire-and-forget
//   - StatusStore / HistoryStore — live status table and append-only
//     attempt log, with in-memory and Postgres implementations
//
// # Architecture
//
//  1. Send never panics or returns an error: every outcome, including a
//     recovered panic, becomes a Result with a Failed state and message.
//  2. Stage-fatal failures (rule engine, workflow, render) abort the
//     whole send; per-recipient failures never abort other recipients.
//  3. Cancellation is checked at every stage boundary before external
//     work starts and aborts with a Cancelled state.
//  4. Batch fan-out uses a semaphore channel sized to the CPU count;
//     per-recipient delivery inside one send stays sequential so the
//     persisted attempt order follows AttemptedAt.
//  5. On overall failure the notification is captured into the
//     dead-letter store (when wired) and the escalation check runs.
//
// # Usage
//
//	engine := rules.NewEngine(rules.NewMemoryStore())
//	svc := dispatch.NewService(engine,
//	    dispatch.WithProvider(emailProvider),
//	    dispatch.WithProvider(smsProvider),
//	    dispatch.WithRenderer(renderer),
//	    dispatch.WithDeadLetter(deadletter.NewStore()),
//	)
//
//	result := svc.Send(ctx, n)
//	if !result.Success {
//	    // result.Message explains the failure
//	}
//
// Scheduled delivery:
//
//	svc.Schedule(ctx, n, time.Now().Add(time.Hour))
//
//	sched, _ := dispatch.NewScheduler(svc, dispatch.SchedulerConfig{}, log)
//	sched.Start()
//	defer sched.Stop(context.Background())
package dispatch
