package model

// ConditionField names the transaction field a rule condition inspects.
type ConditionField string

// Condition field constants.
const (
	FieldMerchant    ConditionField = "merchant"
	FieldDescription ConditionField = "description"
	FieldAmount      ConditionField = "amount"
)

// ConditionOp is the comparison a rule condition applies.
type ConditionOp string

// Condition operator constants. String operators are case-insensitive;
// range is inclusive on both bounds.
const (
	OpEquals     ConditionOp = "equals"
	OpContains   ConditionOp = "contains"
	OpStartsWith ConditionOp = "startsWith"
	OpEndsWith   ConditionOp = "endsWith"
	OpRegex      ConditionOp = "regex"
	OpRange      ConditionOp = "range"
)

// Condition is a single predicate inside a rule. All conditions of a rule
// must hold for the rule to match.
type Condition struct {
	Min   *float64       `json:"min,omitempty"`
	Max   *float64       `json:"max,omitempty"`
	Field ConditionField `json:"field"`
	Op    ConditionOp    `json:"op"`
	Value string         `json:"value,omitempty"`
}

// ActionType names the mutation a rule action performs.
type ActionType string

// Action type constants.
const (
	ActionSetCategory     ActionType = "setCategory"
	ActionSetSubscription ActionType = "setSubscription"
	ActionAppendNote      ActionType = "appendNote"
)

// Action is a single mutation applied when a rule matches.
type Action struct {
	Type         ActionType `json:"type"`
	CategoryID   string     `json:"categoryId,omitempty"`
	Note         string     `json:"note,omitempty"`
	Subscription bool       `json:"subscription,omitempty"`
}

// Rule auto-categorizes transactions. Rules evaluate in ascending Priority
// order; StopProcessing halts evaluation after this rule matches.
type Rule struct {
	Envelope
	Name           string      `json:"name"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
	Priority       int         `json:"priority"`
	Enabled        bool        `json:"enabled"`
	StopProcessing bool        `json:"stopProcessing,omitempty"`
}
