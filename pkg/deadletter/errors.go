package deadletter

import "errors"

var (
	// ErrNotFound is returned when no dead-letter record exists for the id.
	ErrNotFound = errors.New("dead-letter record not found")

	// ErrMissingNotificationID is returned when a record has no original
	// notification id.
	ErrMissingNotificationID = errors.New("missing original notification id")

	// ErrStorageUnavailable wraps storage connectivity failures.
	ErrStorageUnavailable = errors.New("dead-letter storage unavailable")
)
