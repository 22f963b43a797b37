package domain

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^\d+\.\d{2}$`)

// PaymentRequest is a single pending-or-settled ask for money. The note token
// is the only correlation key between an external payment and this record.
type PaymentRequest struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"-"`
	Amount     *string   `json:"amount"`
	Note       string    `json:"-"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OpenAmount reports whether the payer may choose the amount.
func (r *PaymentRequest) OpenAmount() bool {
	return r.Amount == nil || *r.Amount == ""
}

// URI builds the bank-transfer URI the payer's app understands. Parameters
// keep the pa, pn, tn, am, cu order some payer apps expect.
func (r *PaymentRequest) URI(m *Merchant) string {
	amount := ""
	if r.Amount != nil {
		amount = *r.Amount
	}
	params := [][2]string{
		{"pa", m.VPA},
		{"pn", m.Name},
		{"tn", r.Note},
		{"am", amount},
		{"cu", m.Currency},
	}
	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// ParseAmount validates the two-decimal wire format and returns the value.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountsEqual compares two wire amounts numerically, so "050.00" equals "50.00".
func AmountsEqual(a, b string) bool {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return false
	}
	return da.Equal(db)
}
