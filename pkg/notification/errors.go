package notification

import "errors"

var (
	// ErrMissingRecipientID is returned for a recipient without an id.
	ErrMissingRecipientID = errors.New("recipient id is required")

	// ErrNoContactInfo is returned for a recipient with no contact field
	// on any channel.
	ErrNoContactInfo = errors.New("recipient has no contact information")
)
