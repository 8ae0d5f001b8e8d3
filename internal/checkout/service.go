package checkout

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/financing-gateway/internal/common"
	"github.com/noah-isme/financing-gateway/internal/eligibility"
	"github.com/noah-isme/financing-gateway/internal/financing"
	"github.com/noah-isme/financing-gateway/internal/lock"
	"github.com/noah-isme/financing-gateway/internal/order"
)

// Service runs the checkout-side financing flow: gate on eligibility, request
// an offer, and move the order into the pending-funding state. The shopper is
// then redirected to the provider to complete the application.
type Service struct {
	Store       order.Store
	Offers      *financing.Service
	Eligibility eligibility.Evaluator

	// Currency is the host system's default, used only when an order carries
	// no transaction currency of its own.
	Currency string
	States   financing.States

	// Locker serialises concurrent offer creation per order. Optional; without
	// it the flow falls back to the host system's last-write-wins behaviour.
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// Result is the checkout outcome handed back to the storefront.
type Result struct {
	RedirectURL string `json:"redirectUrl"`
}

// Process creates a financing offer for the order and transitions it to the
// pending-funding state. Offer failure leaves the order untouched; the
// storefront surfaces the failure and lets the shopper resubmit, which
// regenerates the same usage token for the same order number.
func (s *Service) Process(ctx context.Context, orderID string, secure bool) (Result, error) {
	if s == nil || s.Store == nil || s.Offers == nil {
		return Result{}, errors.New("checkout: financing flow not configured")
	}
	ord, err := s.Store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return Result{}, common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
		}
		return Result{}, err
	}

	currency := ord.Currency
	if currency == "" {
		currency = s.Currency
	}
	eligible := s.Eligibility.IsEligible(eligibility.Request{
		Amount:   ord.Total,
		Country:  ord.Country,
		Secure:   secure,
		Currency: currency,
	})
	if !eligible {
		return Result{}, common.NewAppError("NOT_ELIGIBLE", "financing is not available for this order",
			http.StatusUnprocessableEntity, nil)
	}

	var redirectURL string
	createAndMark := func(ctx context.Context) error {
		url, err := s.Offers.CreateOffer(ctx, ord)
		if err != nil {
			return err
		}
		if err := s.Store.UpdateStatus(ctx, ord.ID, s.States.PendingFunding, financing.NotePendingFunding); err != nil {
			return err
		}
		redirectURL = url
		return nil
	}

	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.OfferKey(ord.Number), s.LockTTL, createAndMark)
	} else {
		err = createAndMark(ctx)
	}
	if err != nil {
		s.Logger.Error().Err(err).Str("order", ord.Number).Msg("financing checkout failed")
		return Result{}, err
	}
	return Result{RedirectURL: redirectURL}, nil
}
