package domain

import (
	"strings"
	"time"
	"unicode"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchMatched   MatchStatus = "matched"
	MatchUnmatched MatchStatus = "unmatched"
	MatchDuplicate MatchStatus = "duplicate"
	MatchRefunded  MatchStatus = "refunded"
)

// CassoTransaction is one bank credit notification.
type CassoTransaction struct {
	CassoID       string      `json:"cassoId"`
	TID           string      `json:"tid"`
	Amount        int64       `json:"amount"`
	Description   string      `json:"description"`
	When          time.Time   `json:"when"`
	BankAccountID string      `json:"bankAccountId,omitempty"`
	MatchStatus   MatchStatus `json:"matchStatus"`
	Processed     bool        `json:"processed"`
	OrderID       string      `json:"orderId,omitempty"`
	OrderNumber   string      `json:"orderNumber,omitempty"`
	MatchedAt     *time.Time  `json:"matchedAt,omitempty"`
	DeliveryCount int         `json:"deliveryCount"`
	RawPayload    []byte      `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// MatchResult is what ingestion reports for one transaction.
type MatchResult struct {
	CassoID     string      `json:"cassoId"`
	Status      MatchStatus `json:"status"`
	OrderID     string      `json:"orderId,omitempty"`
	OrderNumber string      `json:"orderNumber,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// NormalizeReference upper-cases s and keeps only ASCII letters and digits, so
// "ord-260115 abc" and "ORD260115ABC" compare equal.
func NormalizeReference(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
