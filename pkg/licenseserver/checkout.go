package licenseserver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/menta2k/circle-snip/pkg/license"
)

// Default redirect targets when the caller supplies none
const (
	DefaultSuccessURL = "https://circlesnip.com/success"
	DefaultCancelURL  = "https://circlesnip.com/cancel"
)

// CheckoutProvider creates a payment page for a client
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req license.CheckoutRequest) (string, error)
}

// PaymentLinks serves pre-created hosted payment links, tagging each with the
// client ID so the completed checkout can be matched back to the client.
type PaymentLinks struct {
	Monthly  string
	Lifetime string
}

// CreateSession returns the link for the requested price type. Anything other
// than monthly is sold as lifetime.
func (p PaymentLinks) CreateSession(ctx context.Context, req license.CheckoutRequest) (string, error) {
	link := p.Lifetime
	if req.PriceType == license.TypeMonthly {
		link = p.Monthly
	}
	if link == "" {
		return "", fmt.Errorf("no payment link configured for %s", priceType(req.PriceType))
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid payment link: %w", err)
	}
	q := u.Query()
	q.Set("client_reference_id", req.ClientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func priceType(t license.Type) string {
	if t == license.TypeMonthly {
		return string(license.TypeMonthly)
	}
	return string(license.TypeLifetime)
}
