package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TransactionType is the direction of money flow from the ledger owner's
// perspective.
type TransactionType string

const (
	TypeDebit  TransactionType = "Debit"
	TypeCredit TransactionType = "Credit"
)

// Expense labels the categorizer is allowed to produce.
const (
	LabelMeals     = "Meals & Entertainment"
	LabelTransport = "Transport"
	LabelSaaS      = "SaaS"
	LabelTravel    = "Travel"
	LabelOffice    = "Office"
	LabelOther     = "Other"
)

var knownLabels = map[string]struct{}{
	LabelMeals:     {},
	LabelTransport: {},
	LabelSaaS:      {},
	LabelTravel:    {},
	LabelOffice:    {},
	LabelOther:     {},
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// LedgerEntry is the structured transaction record. Fingerprint is the
// natural key; re-submitting the same fingerprint overwrites the other
// fields (upsert semantics).
type LedgerEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Text        string          `json:"text"`
	Date        string          `json:"date"`
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Vendor      string          `json:"vendor"`
	Type        TransactionType `json:"type"`
	ReferenceID string          `json:"reference_id"`
	Label       string          `json:"label"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
}

// Validate rejects entries the classifier produced with missing or
// malformed fields. Nothing unvalidated may reach the ledger.
func (e *LedgerEntry) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return WrapError(ErrInvalidInput, "validate entry", fmt.Errorf("empty text"))
	}
	if !dateRe.MatchString(e.Date) {
		return WrapError(ErrInvalidInput, "validate entry", fmt.Errorf("bad date %q", e.Date))
	}
	if n := len(e.Currency); n < 3 || n > 4 {
		return WrapError(ErrInvalidInput, "validate entry", fmt.Errorf("bad currency %q", e.Currency))
	}
	if e.Type != TypeDebit && e.Type != TypeCredit {
		return WrapError(ErrInvalidInput, "validate entry", fmt.Errorf("bad transaction type %q", e.Type))
	}
	if _, ok := knownLabels[e.Label]; !ok {
		return WrapError(ErrInvalidInput, "validate entry", fmt.Errorf("unknown label %q", e.Label))
	}
	return nil
}
