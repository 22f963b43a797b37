package domain

type WebhookType string

const (
	WebhookSuccess   WebhookType = "SUCCESS"
	WebhookExpired   WebhookType = "EXPIRED"
	WebhookCancelled WebhookType = "CANCELLED"
)

// WebhookTypeFor maps a terminal status to its webhook type.
func WebhookTypeFor(s Status) (WebhookType, bool) {
	switch s {
	case StatusSuccess:
		return WebhookSuccess, true
	case StatusExpired:
		return WebhookExpired, true
	case StatusCancelled:
		return WebhookCancelled, true
	}
	return "", false
}

// WebhookEvent is the body POSTed to a merchant's webhook URL. Timestamp is
// in Unix milliseconds.
type WebhookEvent struct {
	Type      WebhookType `json:"type"`
	WebhookID string      `json:"webhookId"`
	RequestID string      `json:"requestId"`
	Status    Status      `json:"status"`
	Timestamp int64       `json:"timestamp"`
}
