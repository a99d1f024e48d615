// Package license talks to the license service and keeps the local
// entitlement state that gates captures beyond the free allowance.
package license

import "time"

// Type is the kind of license purchased
type Type string

const (
	TypeMonthly  Type = "monthly"
	TypeLifetime Type = "lifetime"
)

// Reasons reported with an invalid verdict
const (
	ReasonNoLicense           = "no_license"
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonUnknown             = "unknown"
)

// Verdict is the license service's answer for one client
type Verdict struct {
	Valid     bool   `json:"valid"`
	Type      Type   `json:"type,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Email     string `json:"email,omitempty"`
}

// CachedVerdict is the last positive verdict, kept for offline use
type CachedVerdict struct {
	Valid     bool      `json:"valid"`
	Type      Type      `json:"type"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Source says where an entitlement came from
type Source string

const (
	SourceServer Source = "server"
	SourceCache  Source = "cache"
	SourceNone   Source = "none"
)

// Entitlement is the effective license state used to gate captures
type Entitlement struct {
	Pro    bool
	Type   Type
	Source Source
	Reason string
}

// CheckoutRequest asks the service for a payment page
type CheckoutRequest struct {
	ClientID   string `json:"clientId"`
	PriceType  Type   `json:"priceType"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

// CheckoutResponse carries the redirect target for completing payment
type CheckoutResponse struct {
	URL string `json:"url"`
}
