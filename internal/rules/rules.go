// Package rules implements user-defined categorization rules and the engine
// that applies them to extracted transactions.
package rules

// LogicOperator combines a rule's conditions.
type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// ConditionField is the transaction attribute a condition inspects.
type ConditionField string

const (
	FieldMerchantName ConditionField = "merchant_name"
	FieldAmount       ConditionField = "amount"
)

// ConditionOperator compares a transaction field against the rule value.
// String operators apply only to merchant_name, numeric operators only to
// amount; unsupported combinations evaluate to non-match, never an error.
type ConditionOperator string

const (
	OpEq       ConditionOperator = "eq"
	OpNeq      ConditionOperator = "neq"
	OpContains ConditionOperator = "contains"
	OpGt       ConditionOperator = "gt"
	OpLt       ConditionOperator = "lt"
	OpGte      ConditionOperator = "gte"
	OpLte      ConditionOperator = "lte"
)

// Condition is one predicate within a rule.
type Condition struct {
	Field    ConditionField    `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// ActionType is the closed set of rule action kinds. The engine matches on it
// exhaustively; adding a kind means extending this enumeration, not an
// open-ended dispatch table.
type ActionType string

const (
	// ActionIgnore drops the transaction entirely and short-circuits all
	// remaining actions and rules for it.
	ActionIgnore ActionType = "ignore"
	// ActionSetSign forces the amount's sign to "positive" or "negative".
	ActionSetSign ActionType = "set_sign"
	// ActionSetCategory assigns a category identifier.
	ActionSetCategory ActionType = "set_category"
)

// SignValue values accepted by ActionSetSign.
const (
	SignPositive = "positive"
	SignNegative = "negative"
)

// Action is a tagged variant: ignore carries no value, set_sign carries a
// SignValue and set_category a category identifier.
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value,omitempty"`
}

// Rule is one ordered, user-owned categorization rule. A rule with zero
// conditions never matches; this is deliberate, so a half-configured rule
// cannot silently match everything.
type Rule struct {
	RuleID        string        `json:"rule_id"`
	LogicOperator LogicOperator `json:"logic_operator"`
	Conditions    []Condition   `json:"conditions"`
	Actions       []Action      `json:"actions"`
	Enabled       bool          `json:"enabled"`
}

// Enabled filters rules to the enabled ones, preserving stored order. The
// engine itself does not look at the flag; callers filter before applying.
func Enabled(all []Rule) []Rule {
	out := make([]Rule, 0, len(all))
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}
