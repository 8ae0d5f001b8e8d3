package financing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/financing-gateway/internal/obs"
	"github.com/noah-isme/financing-gateway/internal/order"
)

const defaultValidityDays = 3

// Service builds and sends offer requests and persists the resulting
// reference state on the order.
type Service struct {
	Store         order.Store
	Client        OfferAPI
	PartnerKey    string
	UsagePrefix   string
	ValidityDays  int
	CallbackURL   string
	Description   string
	ShippingLabel string
	Logger        zerolog.Logger
}

// OfferAPI is the outbound provider call CreateOffer depends on.
type OfferAPI interface {
	RequestOffer(ctx context.Context, req OfferRequest) (string, error)
}

// CreateOffer asks the provider for a financing offer covering the order and,
// on success, stores the base64-encoded registration URL together with the
// usage token as the order's metadata pair. No failure path writes metadata.
// The amount sent is the order total as stored, without recalculation.
func (s *Service) CreateOffer(ctx context.Context, ord order.Order) (string, error) {
	if s == nil || s.Store == nil || s.Client == nil {
		return "", errors.New("financing: offer service not configured")
	}
	ctx, span := otel.Tracer("financing.Service").Start(ctx, "Financing.CreateOffer")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", ord.Number))

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("financing.offer.result", result),
			attribute.Float64("financing.offer.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.OfferRequestTotal != nil {
			obs.OfferRequestTotal.WithLabelValues(result).Inc()
		}
	}()

	usage := BuildUsage(s.UsagePrefix, ord.Number)
	req := s.buildRequest(ord, usage)

	registerURL, err := s.Client.RequestOffer(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(registerURL))
	if err := s.Store.SaveFinancingRef(ctx, ord.ID, encoded, usage); err != nil {
		// The provider accepted the offer but the reference state could not be
		// stored, so the callback would not find the order. Surface loudly.
		s.Logger.Error().Err(err).Str("order", ord.Number).Str("usage", usage).
			Msg("offer accepted but reference state not persisted")
		span.RecordError(err)
		return "", fmt.Errorf("persist financing reference: %w", err)
	}
	result = "success"
	return registerURL, nil
}

func (s *Service) buildRequest(ord order.Order, usage string) OfferRequest {
	validity := s.ValidityDays
	if validity <= 0 {
		validity = defaultValidityDays
	}
	shippingLabel := s.ShippingLabel
	if shippingLabel == "" {
		shippingLabel = "Shipping costs"
	}
	basket := make([]BasketEntry, 0, len(ord.Items)+1)
	for _, item := range ord.Items {
		basket = append(basket, BasketEntry{
			Description: item.Description,
			Amount:      item.UnitAmount,
			Times:       item.Quantity,
		})
	}
	basket = append(basket, BasketEntry{
		Description: shippingLabel,
		Amount:      ord.ShippingTotal,
		Times:       1,
	})
	return OfferRequest{
		PartnerKey:           s.PartnerKey,
		Amount:               ord.Total,
		ValidityDays:         validity,
		Usage:                usage,
		Email:                ord.Email,
		Basket:               basket,
		CallbackURL:          s.CallbackURL,
		Description:          s.Description,
		Phone:                ord.Phone,
		Given:                ord.GivenName,
		Family:               ord.FamilyName,
		Country:              ord.Country,
		Zip:                  ord.Postcode,
		City:                 ord.City,
		StreetAndHousenumber: ord.Street,
	}
}
