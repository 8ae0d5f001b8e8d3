package financing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/financing-gateway/internal/financing"
)

func TestRequestOfferSuccess(t *testing.T) {
	var received financing.OfferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/backend/urlreferral/url", r.URL.Path)
		require.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"url":     "https://register.example.test/apply?token=abc",
		})
	}))
	t.Cleanup(srv.Close)

	client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
	url, err := client.RequestOffer(context.Background(), financing.OfferRequest{
		PartnerKey: "pk", Amount: 650, Usage: "Order-1042",
	})
	require.NoError(t, err)
	require.Equal(t, "https://register.example.test/apply?token=abc", url)
	require.Equal(t, "Order-1042", received.Usage)
	require.Equal(t, 650.0, received.Amount)
}

func TestRequestOfferTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
	_, err := client.RequestOffer(context.Background(), financing.OfferRequest{Usage: "Order-1"})
	require.ErrorIs(t, err, financing.ErrProviderUnavailable)
}

func TestRequestOfferNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
	_, err := client.RequestOffer(context.Background(), financing.OfferRequest{Usage: "Order-1"})
	require.ErrorIs(t, err, financing.ErrMalformedResponse)
}

func TestRequestOfferDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	t.Cleanup(srv.Close)

	client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
	_, err := client.RequestOffer(context.Background(), financing.OfferRequest{Usage: "Order-1"})
	require.ErrorIs(t, err, financing.ErrMalformedResponse)
}

func TestRequestOfferUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	t.Cleanup(srv.Close)

	client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
	_, err := client.RequestOffer(context.Background(), financing.OfferRequest{Usage: "Order-1"})
	require.ErrorIs(t, err, financing.ErrMalformedResponse)
}

func TestRequestOfferRejectsNonHTTPURL(t *testing.T) {
	cases := []string{"", "javascript:alert(1)", "ftp://example.test/x", "/relative/path"}
	for _, raw := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "url": raw})
		}))
		client := financing.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}
		_, err := client.RequestOffer(context.Background(), financing.OfferRequest{Usage: "Order-1"})
		srv.Close()
		require.ErrorIs(t, err, financing.ErrMalformedResponse, "url %q", raw)
	}
}
