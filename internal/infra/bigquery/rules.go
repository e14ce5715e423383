package bigquery

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-ingest/internal/rules"
)

// RuleRow mirrors the categorization_rules table. Conditions and actions are
// stored as JSON arrays; position carries the user-defined ordering.
type RuleRow struct {
	RuleID        string `bigquery:"rule_id"`
	TenantID      string `bigquery:"tenant_id"`
	Position      int64  `bigquery:"position"`
	LogicOperator string `bigquery:"logic_operator"`
	Conditions    string `bigquery:"conditions"`
	Actions       string `bigquery:"actions"`
	Enabled       bool   `bigquery:"enabled"`
}

// RuleRepository loads a tenant's categorization rules.
type RuleRepository struct {
	store *Store
}

// NewRuleRepository creates a RuleRepository sharing the store's client.
func NewRuleRepository(store *Store) *RuleRepository {
	return &RuleRepository{store: store}
}

// ListEnabledRules returns the tenant's enabled rules in stored order.
// Disabled rules are filtered here, before the engine ever sees them.
func (r *RuleRepository) ListEnabledRules(ctx context.Context, tenantID string) ([]rules.Rule, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT rule_id, tenant_id, position, logic_operator, conditions, actions, enabled
		FROM %s
		WHERE tenant_id = @tenant_id AND enabled = TRUE
		ORDER BY position ASC
	`, r.store.table(rulesTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "tenant_id", Value: tenantID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying rules: %w", err)
	}

	var out []rules.Rule
	for {
		var row RuleRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: reading rule row: %w", err)
		}

		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (row *RuleRow) toRule() (rules.Rule, error) {
	rule := rules.Rule{
		RuleID:        row.RuleID,
		LogicOperator: rules.LogicOperator(row.LogicOperator),
		Enabled:       row.Enabled,
	}
	if row.Conditions != "" {
		if err := json.Unmarshal([]byte(row.Conditions), &rule.Conditions); err != nil {
			return rules.Rule{}, fmt.Errorf("bigquery: decoding conditions for rule %s: %w", row.RuleID, err)
		}
	}
	if row.Actions != "" {
		if err := json.Unmarshal([]byte(row.Actions), &rule.Actions); err != nil {
			return rules.Rule{}, fmt.Errorf("bigquery: decoding actions for rule %s: %w", row.RuleID, err)
		}
	}
	return rule, nil
}
