package checkout_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/financing-gateway/internal/checkout"
	"github.com/noah-isme/financing-gateway/internal/financing"
)

func postFinancing(t *testing.T, h *checkout.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/financing", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	h.Financing(rec, req)
	return rec
}

func TestFinancingEndpointHappyPath(t *testing.T) {
	ord := eligibleOrder()
	store := newFakeStore(ord)
	api := &countingOfferAPI{url: "https://register.example.test/apply"}
	h := &checkout.Handler{Svc: newService(store, api)}

	rec := postFinancing(t, h, `{"orderId":"`+ord.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RedirectURL string `json:"redirectUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, api.url, resp.RedirectURL)
}

func TestFinancingEndpointValidatesBody(t *testing.T) {
	h := &checkout.Handler{Svc: newService(newFakeStore(), &countingOfferAPI{})}

	rec := postFinancing(t, h, `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postFinancing(t, h, `{"orderId":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinancingEndpointMapsErrors(t *testing.T) {
	ord := eligibleOrder()
	store := newFakeStore(ord)
	api := &countingOfferAPI{err: financing.ErrProviderUnavailable}
	h := &checkout.Handler{Svc: newService(store, api)}

	rec := postFinancing(t, h, `{"orderId":"`+ord.ID+`"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = postFinancing(t, h, `{"orderId":"missing"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
