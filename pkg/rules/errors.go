package rules

import "errors"

var (
	// ErrMissingTenant is returned when a rule has no tenant id.
	ErrMissingTenant = errors.New("rule tenant id is required")

	// ErrMissingRuleName is returned when a rule has no name.
	ErrMissingRuleName = errors.New("rule name is required")

	// ErrNoActions is returned when a rule carries no workflow actions.
	ErrNoActions = errors.New("rule requires at least one action")

	// ErrConditionMixed is returned when a condition node is both a leaf
	// and a composite.
	ErrConditionMixed = errors.New("condition must be a leaf or a composite, not both")

	// ErrEmptyComposite is returned when a composite condition has no
	// nested conditions.
	ErrEmptyComposite = errors.New("composite condition requires nested conditions")

	// ErrMissingFieldPath is returned when a leaf condition has no field path.
	ErrMissingFieldPath = errors.New("leaf condition requires a field path")

	// ErrUnknownOperator is returned for an unrecognized comparison operator.
	ErrUnknownOperator = errors.New("unknown condition operator")

	// ErrUnknownLogicalOperator is returned for an unrecognized logical operator.
	ErrUnknownLogicalOperator = errors.New("unknown logical operator")

	// ErrUnknownActionType is returned for an unrecognized workflow action type.
	ErrUnknownActionType = errors.New("unknown workflow action type")

	// ErrInvalidActionParameters is returned when an action's parameter
	// set is missing or malformed.
	ErrInvalidActionParameters = errors.New("invalid action parameters")

	// ErrRuleNotFound is returned when a rule does not exist for the tenant.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when creating a rule with an id already in use.
	ErrRuleExists = errors.New("rule already exists")

	// ErrNoHandler is returned when no handler is registered for an action type.
	ErrNoHandler = errors.New("no handler registered for action type")

	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("rule store unavailable")
)
