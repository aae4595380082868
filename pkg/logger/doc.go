// Package logger provides a configurable slog-based logging factory with
// context attribute injection and domain-specific attribute helpers.
//
// The factory produces a *slog.Logger wired with either a JSON handler
// (production) or text handler (development), optional static attributes,
// and context extractors that pull request-scoped values into every record.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("notifykit"),
//	    logger.WithContextValue("request_id", requestIDKey),
//	)
//
//	log.InfoContext(ctx, "notification delivered",
//	    logger.TenantID(tenantID),
//	    logger.NotificationID(id),
//	    logger.Channel("email"),
//	)
//
// Attribute helpers keep log keys consistent across packages: tenant_id,
// notification_id, recipient_id, rule_id, channel, attempt, retry_count.
package logger
