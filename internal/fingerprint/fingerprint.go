// Package fingerprint derives stable, collision-resistant identifiers for
// transactions so that re-ingesting the same statement is idempotent.
//
// The fingerprint is never a secret; it is the natural key for deduplication
// within one tenant's transaction set.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

const separator = "|"

// Transaction computes the fingerprint for one logical transaction.
//
// Normalization: merchant name is lower-cased and trimmed, currency is
// upper-cased, the amount is its exact integer minor-unit value and the date
// its canonical YYYY-MM-DD form. Identical logical transactions for the same
// user therefore always hash to the same digest regardless of casing or
// surrounding whitespace in the merchant name.
func Transaction(userID string, date time.Time, merchantName string, amountMinor int64, currency string) string {
	parts := []string{
		userID,
		date.Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(merchantName)),
		strconv.FormatInt(amountMinor, 10),
		strings.ToUpper(currency),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])
}

// ForInput is a convenience wrapper over Transaction for extracted candidates.
func ForInput(userID string, tx domain.TransactionInput) string {
	return Transaction(userID, tx.Date, tx.MerchantName, tx.AmountMinor, tx.Currency)
}
