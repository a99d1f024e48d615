package licenseserver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/circle-snip/pkg/license"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the maximum age of a signed webhook timestamp
const DefaultTolerance = 5 * time.Minute

var (
	ErrNoSignature      = errors.New("no signature found")
	ErrInvalidSignature = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("timestamp outside tolerance")
)

// Sign computes the signature header for payload at t
func Sign(payload []byte, secret string, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeMAC(payload, secret, ts))
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header against payload.
// Any v1 entry may match; the timestamp must be within tolerance of now.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var ts string
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			if sig, err := hex.DecodeString(v); err == nil {
				sigs = append(sigs, sig)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrNoSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrNoSignature, ts)
	}
	if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
		return ErrStaleSignature
	}

	expected := computeMAC(payload, secret, ts)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func computeMAC(payload []byte, secret, ts string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Event is a payment-provider webhook event
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Mode         string `json:"mode"`
	Subscription string `json:"subscription"`
}

type subscriptionObject struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

type invoiceObject struct {
	Subscription string `json:"subscription"`
}

// HandleEvent applies an event to the store. Unknown event types are ignored.
func (s *Server) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case "checkout.session.completed":
		var sess checkoutSession
		if err := json.Unmarshal(ev.Data.Object, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.completeCheckout(ctx, sess)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(ev.Data.Object, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		updated, err := s.store.RecordSubscription(ctx, Subscription{
			ID:               sub.ID,
			Status:           sub.Status,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
		})
		if err != nil {
			return err
		}
		s.logger.Info("subscription event", "type", ev.Type, "subscription", sub.ID, "status", sub.Status, "license_updated", updated)

	case "invoice.payment_failed":
		var inv invoiceObject
		if err := json.Unmarshal(ev.Data.Object, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == "" {
			return nil
		}
		found, err := s.store.SetStatusBySubscription(ctx, inv.Subscription, StatusPaymentFailed)
		if err != nil {
			return err
		}
		s.logger.Warn("payment failed", "subscription", inv.Subscription, "license_found", found)

	default:
		s.logger.Debug("ignoring event", "type", ev.Type, "id", ev.ID)
	}
	return nil
}

func (s *Server) completeCheckout(ctx context.Context, sess checkoutSession) error {
	if sess.ClientReferenceID == "" {
		s.logger.Error("checkout completed without client reference")
		return nil
	}
	email := sess.CustomerEmail
	if email == "" {
		email = sess.CustomerDetails.Email
	}

	l := &License{
		ClientID: sess.ClientReferenceID,
		Email:    email,
		Status:   StatusActive,
	}

	if sess.Mode == "subscription" {
		l.Type = license.TypeMonthly
		l.SubscriptionID = sess.Subscription
		sub, err := s.store.GetSubscription(ctx, sess.Subscription)
		if err != nil {
			return err
		}
		if sub != nil {
			l.CurrentPeriodEnd = sub.CurrentPeriodEnd
		}
	} else {
		l.Type = license.TypeLifetime
	}

	if err := s.store.Upsert(ctx, l); err != nil {
		return err
	}
	s.logger.Info("license activated", "client_id", l.ClientID, "type", l.Type)
	return nil
}
