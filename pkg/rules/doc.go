// Package rules implements the rule and workflow engine at the heart of
// the notification pipeline: tenant-scoped rules with condition trees,
// an ordered workflow-action pipeline with partial-failure semantics,
// and escalation decisions derived from delivery outcomes.
//
// # Architecture
//
//   - Condition/Evaluator: boolean condition trees evaluated against a
//     notification via dotted field paths. Per-condition errors degrade
//     to non-matches so one broken rule never blocks the rest.
//   - Store: tenant-scoped rule persistence (MemoryStore for in-process
//     use, MongoStore for durability). Updates bump Version.
//   - Engine: evaluates rules, executes matched rules' actions in
//     priority order threading a copy-on-write notification forward,
//     and computes escalation decisions.
//   - ActionHandler: one handler per workflow action variant, pluggable
//     via WithActionHandler.
//
// # Usage
//
//	engine := rules.NewEngine(rules.NewMemoryStore())
//
//	rule := rules.Rule{
//	    TenantID: "acme",
//	    Name:     "escalate critical orders",
//	    IsActive: true,
//	    Priority: 10,
//	    Condition: rules.Condition{
//	        FieldPath:      "EventType",
//	        Operator:       rules.OpEquals,
//	        ExpectedValues: []any{"order.failed"},
//	    },
//	    Actions: []rules.Action{
//	        {Type: rules.ActionSetPriority, Parameters: map[string]any{"priority": "critical"}},
//	    },
//	}
//	rule, _ = engine.Store().Create(ctx, rule)
//
//	matched, _, err := engine.Evaluate(ctx, &notif)
//	if err == nil && len(matched) > 0 {
//	    result := engine.ProcessWorkflow(ctx, notif, matched)
//	    notif = result.Notification
//	}
package rules
