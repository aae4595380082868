package dispatch

import "errors"

var (
	// ErrStatusNotFound is returned when no status record exists for the id.
	ErrStatusNotFound = errors.New("notification status not found")

	// ErrNotificationNotFound is returned when the orchestrator has no
	// snapshot for the id.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidStateTransition is returned when an operation is not
	// allowed from the notification's current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNoProvider is returned when no provider is registered for a channel.
	ErrNoProvider = errors.New("no provider registered for channel")

	// ErrNoSuitableChannel marks a recipient no channel could reach.
	ErrNoSuitableChannel = errors.New("no suitable channel for recipient")

	// ErrMissingRecipients is returned for a notification with nobody to
	// deliver to.
	ErrMissingRecipients = errors.New("notification has no recipients")

	// ErrHistoryUnavailable wraps delivery history persistence failures.
	ErrHistoryUnavailable = errors.New("delivery history unavailable")
)
