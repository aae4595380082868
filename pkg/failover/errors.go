package failover

import "errors"

var (
	// ErrMissingRuleName is returned for a rule without a name.
	ErrMissingRuleName = errors.New("failover rule name is required")

	// ErrInvalidPrimaryChannel is returned when the primary channel is not
	// a supported medium.
	ErrInvalidPrimaryChannel = errors.New("invalid primary channel")

	// ErrNoFailoverChannels is returned for a rule without fallbacks.
	ErrNoFailoverChannels = errors.New("failover rule requires at least one failover channel")

	// ErrInvalidFailoverChannel is returned when a fallback channel is not
	// a supported medium.
	ErrInvalidFailoverChannel = errors.New("invalid failover channel")

	// ErrNegativeDelay is returned for a negative failover delay.
	ErrNegativeDelay = errors.New("failover delay must not be negative")

	// ErrNegativeMaxRetries is returned for a negative retry budget.
	ErrNegativeMaxRetries = errors.New("failover max retries must not be negative")

	// ErrMissingTenant is returned when a tenant id is required but empty.
	ErrMissingTenant = errors.New("tenant id is required")
)
