package rules

import (
	"time"
)

// Rule is a tenant-scoped condition plus an ordered action list,
// evaluated against every incoming notification for that tenant.
// Higher Priority rules are evaluated and applied first. The store
// increments Version monotonically on every update.
type Rule struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Priority  int       `json:"priority"`
	Condition Condition `json:"condition"`
	Actions   []Action  `json:"actions"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the rule is well-formed: tenant and name present, a
// valid condition tree, and at least one known action.
func (r Rule) Validate() error {
	if r.TenantID == "" {
		return ErrMissingTenant
	}
	if r.Name == "" {
		return ErrMissingRuleName
	}
	if err := r.Condition.Validate(); err != nil {
		return err
	}
	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	for _, action := range r.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone deep-copies the rule so store snapshots never alias caller state.
func (r Rule) Clone() Rule {
	out := r
	out.Condition = r.Condition.Clone()
	if r.Actions != nil {
		out.Actions = make([]Action, len(r.Actions))
		for i, action := range r.Actions {
			out.Actions[i] = action.Clone()
		}
	}
	return out
}
