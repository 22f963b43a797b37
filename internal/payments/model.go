package payments

import (
	"time"

	"upi-gateway/domain"
)

const PageSize = 15

type CreateKeyInput struct {
	Name     string  `json:"name"`
	VPA      string  `json:"vpa"`
	Currency string  `json:"currency,omitempty"`
	Webhook  *string `json:"webhook,omitempty"`
}

type CreatedRequest struct {
	ID   string `json:"id"`
	Note string `json:"note"`
	URI  string `json:"uri"`
}

// RequestView is a request as its merchant sees it. The note token stays
// inside the URI.
type RequestView struct {
	ID        string        `json:"id"`
	Amount    *string       `json:"amount"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	URI       string        `json:"uri"`
}
