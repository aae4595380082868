package rules

// Operator is a leaf condition comparison operator.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpDoesNotContain     Operator = "does_not_contain"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpRegex              Operator = "regex"
	OpIsNull             Operator = "is_null"
	OpIsNotNull          Operator = "is_not_null"
)

// LogicalOperator combines nested conditions in a composite node.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
	LogicalNot LogicalOperator = "not"
)

// Condition is one node of a rule's condition tree: either a leaf
// comparison against a resolved field path, or a composite combining
// nested conditions with a logical operator. A node is a leaf XOR has
// nested conditions.
type Condition struct {
	FieldPath      string          `json:"field_path,omitempty"`
	Operator       Operator        `json:"operator,omitempty"`
	ExpectedValues []any           `json:"expected_values,omitempty"`
	CaseSensitive  bool            `json:"case_sensitive,omitempty"`
	Logical        LogicalOperator `json:"logical_operator,omitempty"`
	Nested         []Condition     `json:"nested_conditions,omitempty"`
}

// IsComposite reports whether the node combines nested conditions.
func (c Condition) IsComposite() bool {
	return c.Logical != ""
}

// Validate checks the leaf-XOR-composite invariant recursively.
func (c Condition) Validate() error {
	if c.IsComposite() {
		if c.FieldPath != "" || c.Operator != "" {
			return ErrConditionMixed
		}
		switch c.Logical {
		case LogicalAnd, LogicalOr, LogicalNot:
		default:
			return ErrUnknownLogicalOperator
		}
		if len(c.Nested) == 0 {
			return ErrEmptyComposite
		}
		for _, nested := range c.Nested {
			if err := nested.Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	if len(c.Nested) > 0 {
		return ErrConditionMixed
	}
	if c.FieldPath == "" {
		return ErrMissingFieldPath
	}
	switch c.Operator {
	case OpEquals, OpNotEquals, OpIn, OpNotIn,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpContains, OpDoesNotContain, OpStartsWith, OpEndsWith,
		OpRegex, OpIsNull, OpIsNotNull:
		return nil
	default:
		return ErrUnknownOperator
	}
}

// Clone deep-copies the condition tree.
func (c Condition) Clone() Condition {
	out := c
	if c.ExpectedValues != nil {
		out.ExpectedValues = append([]any(nil), c.ExpectedValues...)
	}
	if c.Nested != nil {
		out.Nested = make([]Condition, len(c.Nested))
		for i, nested := range c.Nested {
			out.Nested[i] = nested.Clone()
		}
	}
	return out
}
