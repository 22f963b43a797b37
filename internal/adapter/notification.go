// Package adapter turns payment-app notifications observed on the merchant's
// phone into confirmation calls against the gateway.
package adapter

import "regexp"

// DefaultSource is the package name of the payment app whose notifications
// are trusted.
const DefaultSource = "com.google.android.apps.nbu.paisa.user"

var amountPattern = regexp.MustCompile(`₹(\d+\.\d{2})`)

// Notification is one posted notification as captured on the device.
type Notification struct {
	Time        string `json:"time"`
	App         string `json:"app"`
	Title       string `json:"title"`
	TitleBig    string `json:"titleBig"`
	Text        string `json:"text"`
	SubText     string `json:"subText"`
	SummaryText string `json:"summaryText"`
	BigText     string `json:"bigText"`
}

// ExtractAmount finds the first rupee amount in title.
func ExtractAmount(title string) (string, bool) {
	m := amountPattern.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}
