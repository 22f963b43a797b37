package domain

import "time"

// RequestSummary is the listing view of a request. The note token is never
// exposed here.
type RequestSummary struct {
	ID        string    `json:"id"`
	Amount    *string   `json:"amount"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *PaymentRequest) Summary() RequestSummary {
	return RequestSummary{
		ID:        r.ID,
		Amount:    r.Amount,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}
