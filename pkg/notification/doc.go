// Package notification defines the domain model shared by the
// orchestration packages: the Notification event, recipients with
// per-channel capability and preference, delivery channels, priorities,
// the delivery lifecycle state machine, and delivery attempt records.
//
// Notification is an immutable value. All mutation helpers (WithSubject,
// WithPriority, AddRecipients, ...) return a deep copy, which lets
// workflow actions thread modifications forward without aliasing the
// original event.
//
//	notif := notification.Notification{
//	    ID:       uuid.New().String(),
//	    TenantID: "acme",
//	    Priority: notification.PriorityHigh,
//	    Subject:  "Build failed",
//	    Recipients: []notification.Recipient{
//	        {ID: "u1", Email: "dev@acme.test"},
//	    },
//	}
//	escalated := notif.WithPriority(notification.PriorityCritical)
package notification
