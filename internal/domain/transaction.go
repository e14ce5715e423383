package domain

import (
	"time"
)

// TransactionInput is one candidate transaction produced by the extraction
// model. It is never mutated in place; the rule engine returns overrides as a
// separate delta and the persistence layer decides how to merge them.
type TransactionInput struct {
	Date         time.Time // statement date (day precision)
	MerchantName string    // merchant/payee as printed on the statement
	AmountMinor  int64     // signed amount in minor currency units (pence, cents)
	Currency     string    // ISO 4217 code, e.g. "GBP"

	Category   string // optional category suggested by the model
	Confidence int64  // model confidence in [0,100], 0 when unknown
}

// DateString returns the canonical YYYY-MM-DD form used for fingerprinting.
func (t TransactionInput) DateString() string {
	return t.Date.Format("2006-01-02")
}
