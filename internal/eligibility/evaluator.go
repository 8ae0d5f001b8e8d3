package eligibility

import (
	"strings"

	"github.com/rs/zerolog"
)

// Request carries the checkout context an eligibility decision is made for.
// Country may be empty when the shopper has not entered an address yet.
type Request struct {
	Amount   float64
	Country  string
	Secure   bool
	Currency string
	Admin    bool
}

// Evaluator decides whether the gateway may be offered for a cart or product.
// Every check fails closed except the country check, which stays permissive
// while the billing country is unknown so checkout is not blocked on missing
// data.
type Evaluator struct {
	Currency            string
	MinAmount           float64
	MaxAmount           float64
	Countries           []string
	Live                bool
	AllowInsecure       bool
	ForceSecureCheckout bool
	Logger              zerolog.Logger
}

// IsEligible reports whether the gateway may be offered. Administrative
// contexts always pass so configuration previews keep working.
func (e Evaluator) IsEligible(req Request) bool {
	if req.Admin {
		return true
	}
	if !strings.EqualFold(strings.TrimSpace(req.Currency), strings.TrimSpace(e.Currency)) {
		return false
	}
	if !e.secureEnough(req.Secure) {
		return false
	}
	if !e.WithinBounds(req.Amount) {
		return false
	}
	return e.countryAllowed(req.Country)
}

// WithinBounds checks the configured inclusive [min, max] amount range. A
// bound of zero disables that side of the check.
func (e Evaluator) WithinBounds(amount float64) bool {
	if e.MinAmount > 0 && amount < e.MinAmount {
		return false
	}
	if e.MaxAmount > 0 && amount > e.MaxAmount {
		return false
	}
	return true
}

func (e Evaluator) countryAllowed(country string) bool {
	trimmed := strings.TrimSpace(country)
	if trimmed == "" {
		return true
	}
	for _, allowed := range e.Countries {
		if strings.EqualFold(trimmed, allowed) {
			return true
		}
	}
	return false
}

// secureEnough applies the transport-security rule: without TLS and without a
// host-enforced secure checkout, the gateway disables itself in live mode and
// only warns in test mode, unless the insecure override is set.
func (e Evaluator) secureEnough(secure bool) bool {
	if secure || e.ForceSecureCheckout || e.AllowInsecure {
		return true
	}
	if e.Live {
		return false
	}
	e.Logger.Warn().Msg("insecure checkout context; gateway would be disabled in live mode")
	return true
}
