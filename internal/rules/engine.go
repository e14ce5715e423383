package rules

import (
	"strconv"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Overrides is the delta a rule pass produces. Fields are independently
// optional; nil means "leave the original value alone".
type Overrides struct {
	AmountMinor *int64
	CategoryID  *string
}

// Result is the outcome of applying a rule list to one transaction.
type Result struct {
	Skip         bool
	RulesApplied int
	Overrides    Overrides
}

// Apply evaluates rules against tx in their stored order and returns the
// accumulated overrides, or Skip when a matching rule's ignore action fires.
//
// Rule evaluation never fails: unsupported field/operator/action combinations
// degrade to non-matches or no-ops so a misconfigured rule does nothing
// rather than blocking a whole document's ingestion.
func Apply(tx domain.TransactionInput, ruleList []Rule) Result {
	var res Result

	for _, rule := range ruleList {
		if !matches(tx, rule) {
			continue
		}
		res.RulesApplied++

		for _, action := range rule.Actions {
			switch action.Type {
			case ActionIgnore:
				// Ignore discards everything accumulated so far, including
				// overrides from earlier matching rules in this same pass.
				return Result{Skip: true, RulesApplied: res.RulesApplied}

			case ActionSetSign:
				current := tx.AmountMinor
				if res.Overrides.AmountMinor != nil {
					current = *res.Overrides.AmountMinor
				}
				if forced, ok := forceSign(current, action.Value); ok {
					res.Overrides.AmountMinor = &forced
				}

			case ActionSetCategory:
				if action.Value != "" {
					v := action.Value
					res.Overrides.CategoryID = &v
				}
			}
		}
	}

	return res
}

// matches reports whether rule matches tx. A rule with zero conditions never
// matches.
func matches(tx domain.TransactionInput, rule Rule) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	if rule.LogicOperator == LogicOr {
		for _, cond := range rule.Conditions {
			if evaluate(tx, cond) {
				return true
			}
		}
		return false
	}

	// "and" (and anything unrecognized, which only ever tightens matching).
	for _, cond := range rule.Conditions {
		if !evaluate(tx, cond) {
			return false
		}
	}
	return true
}

func evaluate(tx domain.TransactionInput, cond Condition) bool {
	switch cond.Field {
	case FieldMerchantName:
		return evaluateString(tx.MerchantName, cond.Operator, cond.Value)
	case FieldAmount:
		return evaluateNumeric(tx.AmountMinor, cond.Operator, cond.Value)
	default:
		return false
	}
}

func evaluateString(fieldValue string, op ConditionOperator, ruleValue string) bool {
	switch op {
	case OpEq:
		return fieldValue == ruleValue
	case OpNeq:
		return fieldValue != ruleValue
	case OpContains:
		return strings.Contains(fieldValue, ruleValue)
	default:
		return false
	}
}

func evaluateNumeric(amountMinor int64, op ConditionOperator, ruleValue string) bool {
	// Comparisons always use a numeric conversion of the rule value; a
	// non-numeric value yields NaN-style non-match behavior, never an error.
	want, err := strconv.ParseFloat(strings.TrimSpace(ruleValue), 64)
	if err != nil {
		return false
	}
	have := float64(amountMinor)

	switch op {
	case OpEq:
		return have == want
	case OpNeq:
		return have != want
	case OpGt:
		return have > want
	case OpLt:
		return have < want
	case OpGte:
		return have >= want
	case OpLte:
		return have <= want
	default:
		return false
	}
}

// forceSign applies a set_sign value to amount. A missing or unrecognized
// value is a no-op, reported through ok=false.
func forceSign(amount int64, value string) (int64, bool) {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch value {
	case SignPositive:
		return abs, true
	case SignNegative:
		return -abs, true
	default:
		return amount, false
	}
}
