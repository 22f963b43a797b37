package domain

const DefaultCurrency = "INR"

type Merchant struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	VPA      string  `json:"vpa"`
	Currency string  `json:"currency"`
	Key      string  `json:"-"`
	Webhook  *string `json:"webhook,omitempty"`
}

// HasWebhook reports whether the merchant registered a delivery URL.
func (m *Merchant) HasWebhook() bool {
	return m.Webhook != nil && *m.Webhook != ""
}
