package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// transformCandidates converts the model's generic JSON array into normalized
// transaction inputs.
func transformCandidates(items []interface{}) ([]domain.TransactionInput, error) {
	result := make([]domain.TransactionInput, 0, len(items))

	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("transformCandidates: element %d is %T, want map[string]interface{}", i, item)
		}

		dateStr, err := getStringField(obj, "date", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		merchant, err := getStringField(obj, "merchant_name", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		currency, err := getStringField(obj, "currency", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		amountMinor, err := getInt64Field(obj, "amount_minor", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: invalid date %q: %w", i, dateStr, err)
		}

		// Optional fields
		categoryPtr, err := getOptionalStringField(obj, "category")
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		category := ""
		if categoryPtr != nil {
			category = *categoryPtr
		}
		confidence, err := getInt64Field(obj, "confidence", false)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}

		result = append(result, domain.TransactionInput{
			Date:         date,
			MerchantName: merchant,
			AmountMinor:  amountMinor,
			Currency:     strings.ToUpper(currency),
			Category:     category,
			Confidence:   confidence,
		})
	}

	return result, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getInt64Field(m map[string]interface{}, key string, required bool) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		n := int64(val)
		if float64(n) != val {
			return 0, fmt.Errorf("field %q = %v is not an integer", key, val)
		}
		return n, nil
	case int: // unlikely from encoding/json, but harmless to support
		return int64(val), nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
