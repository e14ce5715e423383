package fingerprint

import (
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

func TestTransaction_Deterministic(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	a := Transaction("user-1", date, "Starbucks", -450, "GBP")
	b := Transaction("user-1", date, "Starbucks", -450, "GBP")

	if a != b {
		t.Errorf("expected identical fingerprints, got %q and %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
	for _, c := range a {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("expected lowercase hex digest, got %q", a)
			break
		}
	}
}

func TestTransaction_MerchantNormalization(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		merchant string
	}{
		{"trailing whitespace", "Starbucks "},
		{"lowercase", "starbucks"},
		{"uppercase", "STARBUCKS"},
		{"leading whitespace", "  Starbucks"},
	}

	want := Transaction("user-1", date, "Starbucks", -450, "GBP")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transaction("user-1", date, tt.merchant, -450, "GBP")
			if got != want {
				t.Errorf("Transaction(%q) = %q, want %q", tt.merchant, got, want)
			}
		})
	}
}

func TestTransaction_CurrencyCaseInsensitive(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	upper := Transaction("user-1", date, "Tesco", -1000, "GBP")
	lower := Transaction("user-1", date, "Tesco", -1000, "gbp")
	if upper != lower {
		t.Errorf("currency casing changed the fingerprint: %q vs %q", upper, lower)
	}
}

func TestTransaction_DistinctInputsDiffer(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	base := Transaction("user-1", date, "Tesco", -1000, "GBP")

	tests := []struct {
		name string
		got  string
	}{
		{"different user", Transaction("user-2", date, "Tesco", -1000, "GBP")},
		{"different date", Transaction("user-1", date.AddDate(0, 0, 1), "Tesco", -1000, "GBP")},
		{"different merchant", Transaction("user-1", date, "Sainsburys", -1000, "GBP")},
		{"different amount", Transaction("user-1", date, "Tesco", -1001, "GBP")},
		{"different sign", Transaction("user-1", date, "Tesco", 1000, "GBP")},
		{"different currency", Transaction("user-1", date, "Tesco", -1000, "EUR")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == base {
				t.Errorf("expected fingerprint to differ from base %q", base)
			}
		})
	}
}

func TestForInput(t *testing.T) {
	tx := domain.TransactionInput{
		Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		MerchantName: "Starbucks ",
		AmountMinor:  -450,
		Currency:     "gbp",
	}

	want := Transaction("user-1", tx.Date, "starbucks", -450, "GBP")
	if got := ForInput("user-1", tx); got != want {
		t.Errorf("ForInput() = %q, want %q", got, want)
	}
}
