package licenseserver

import (
	"time"

	"github.com/menta2k/circle-snip/pkg/license"
)

// Evaluate turns a stored license into the verdict returned by /verify.
// Lifetime licenses are always valid; monthly ones only while active and
// inside the paid period. An active monthly license without a period end is
// a checkout whose subscription event has not arrived yet and counts as valid.
func Evaluate(l *License, now time.Time) license.Verdict {
	if l == nil {
		return license.Verdict{Valid: false, Reason: license.ReasonNoLicense}
	}

	switch l.Type {
	case license.TypeLifetime:
		return license.Verdict{Valid: true, Type: license.TypeLifetime, Email: l.Email}
	case license.TypeMonthly:
		if l.Status == StatusActive && (l.CurrentPeriodEnd == 0 || l.CurrentPeriodEnd > now.Unix()) {
			return license.Verdict{
				Valid:     true,
				Type:      license.TypeMonthly,
				Email:     l.Email,
				ExpiresAt: l.CurrentPeriodEnd,
			}
		}
		return license.Verdict{Valid: false, Reason: license.ReasonSubscriptionExpired, Email: l.Email}
	}

	return license.Verdict{Valid: false, Reason: license.ReasonUnknown}
}
