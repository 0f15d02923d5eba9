package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-fulfillment/internal/domain"
)

// Webhook is the body Casso posts for new bank credits.
type Webhook struct {
	Error int            `json:"error"`
	Data  []WebhookEntry `json:"data"`
}

type WebhookEntry struct {
	ID           json.Number `json:"id"`
	TID          string      `json:"tid"`
	Description  string      `json:"description"`
	Amount       json.Number `json:"amount"`
	CusumBalance json.Number `json:"cusum_balance,omitempty"`
	When         string      `json:"when"`
	BankSubAccID string      `json:"bank_sub_acc_id,omitempty"`
	SubAccID     string      `json:"subAccId,omitempty"`
}

// Casso reports local time in Vietnam without a zone.
var cassoZone = time.FixedZone("ICT", 7*60*60)

var whenLayouts = []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"}

func (e WebhookEntry) transaction(now time.Time) (domain.CassoTransaction, error) {
	id := strings.TrimSpace(e.ID.String())
	if id == "" {
		return domain.CassoTransaction{}, domain.Validationf("transaction id required")
	}
	amount, err := decimal.NewFromString(e.Amount.String())
	if err != nil {
		return domain.CassoTransaction{}, domain.Validationf("transaction %s: bad amount %q", id, e.Amount)
	}
	if !amount.IsInteger() || amount.Sign() <= 0 {
		return domain.CassoTransaction{}, domain.Validationf("transaction %s: amount must be a positive whole number", id)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return domain.CassoTransaction{}, err
	}
	account := e.BankSubAccID
	if account == "" {
		account = e.SubAccID
	}
	return domain.CassoTransaction{
		CassoID:       id,
		TID:           e.TID,
		Amount:        amount.IntPart(),
		Description:   e.Description,
		When:          parseWhen(e.When, now),
		BankAccountID: account,
		MatchStatus:   domain.MatchPending,
		RawPayload:    raw,
	}, nil
}

func parseWhen(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, cassoZone); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
