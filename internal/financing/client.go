package financing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GatewayID identifies this gateway in callback URLs; the provider echoes it
// as the wc-api query parameter.
const GatewayID = "finance-a-bike"

const (
	liveBaseURL    = "https://backend.financeabike.de/rest"
	sandboxBaseURL = "https://backend.test-financeabike.de"

	offerPath = "/backend/urlreferral/url"
)

var (
	// ErrProviderUnavailable covers transport-level failures reaching the provider.
	ErrProviderUnavailable = errors.New("financing: provider unreachable")
	// ErrMalformedResponse covers unparseable, unsuccessful or incomplete provider replies.
	ErrMalformedResponse = errors.New("financing: malformed provider response")
)

// BasketEntry is one position of the offer request basket.
type BasketEntry struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Times       int     `json:"times"`
}

// OfferRequest is the outbound create-offer payload. Field names are the
// provider's wire format.
type OfferRequest struct {
	PartnerKey           string        `json:"partnerKey"`
	Amount               float64       `json:"amount"`
	ValidityDays         int           `json:"validityDays"`
	Usage                string        `json:"usage"`
	Email                string        `json:"email"`
	Basket               []BasketEntry `json:"basket"`
	CallbackURL          string        `json:"callbackUrl"`
	Description          string        `json:"description"`
	Phone                string        `json:"phone"`
	Given                string        `json:"given"`
	Family               string        `json:"family"`
	Birthdate            string        `json:"birthdate"`
	Country              string        `json:"country"`
	Zip                  string        `json:"zip"`
	City                 string        `json:"city"`
	StreetAndHousenumber string        `json:"streetAndHousenumber"`
}

type offerResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// Client talks to the installment-financing provider's referral API.
type Client struct {
	Live       bool
	BaseURL    string // overrides the mode-derived host, used in tests
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func (c Client) baseURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Live {
		return liveBaseURL
	}
	return sandboxBaseURL
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// RequestOffer performs the single, synchronous create-offer call and returns
// the sanitised registration URL. There is no retry; the caller decides how to
// surface failure to the shopper.
func (c Client) RequestOffer(ctx context.Context, req OfferRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode offer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+offerPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build offer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		c.Logger.Error().Err(err).Str("usage", req.Usage).Msg("offer request failed")
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Logger.Error().Int("status", resp.StatusCode).Str("usage", req.Usage).Msg("offer request rejected")
		return "", fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var parsed offerResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		c.Logger.Error().Err(err).Str("usage", req.Usage).Msg("offer response unparseable")
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !parsed.Success {
		c.Logger.Warn().Str("usage", req.Usage).Msg("offer declined by provider")
		return "", fmt.Errorf("%w: success=false", ErrMalformedResponse)
	}
	sanitised, err := sanitiseURL(parsed.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return sanitised, nil
}

// sanitiseURL accepts only absolute http(s) URLs and re-serialises them with
// URL-safe escaping applied.
func sanitiseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("empty registration url")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("unexpected registration url %q", trimmed)
	}
	return u.String(), nil
}
