package financing_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/financing-gateway/internal/financing"
	"github.com/noah-isme/financing-gateway/internal/order"
)

const webhookSecret = "sk_test_secret"

func newWebhook(store *memStore) financing.Webhook {
	return financing.Webhook{
		Store:     store,
		SecretKey: webhookSecret,
		Machine:   financing.StateMachine{Store: store, States: financing.DefaultStates()},
		Logger:    zerolog.Nop(),
	}
}

func fundedOrder() order.Order {
	ord := sampleOrder()
	ord.Meta = map[string]string{
		order.MetaRegisterURL: "aHR0cHM6Ly9yZWdpc3Rlci5leGFtcGxlLnRlc3Qv",
		order.MetaUsage:       "Order-1042",
	}
	return ord
}

func postCallback(t *testing.T, wh financing.Webhook, status, referenceID, usage, hash string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"status":           status,
		"referenceId":      referenceID,
		"usage":            usage,
		"verificationHash": hash,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/?wc-api=finance-a-bike", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	return rec
}

func signedCallback(t *testing.T, wh financing.Webhook, status, referenceID, usage string) *httptest.ResponseRecorder {
	t.Helper()
	hash := financing.VerificationHash(webhookSecret, status, referenceID, usage)
	return postCallback(t, wh, status, referenceID, usage, hash)
}

func TestWebhookSuccessTransitionsAndClearsReference(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	wh := newWebhook(store)

	rec := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-77", "Order-1042")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp["success"])

	saved := store.snapshot(ord.ID)
	require.Equal(t, "processing", saved.Status)
	require.Equal(t, "fab-ref-77", saved.PaymentRef)
	require.Empty(t, saved.Meta)
}

func TestWebhookReplayAfterSuccessIsRejected(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	wh := newWebhook(store)

	first := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-77", "Order-1042")
	require.Equal(t, http.StatusOK, first.Code)

	// The metadata pair is gone, so the identical delivery no longer resolves
	// to an order.
	replay := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-77", "Order-1042")
	require.Equal(t, http.StatusBadRequest, replay.Code)
	require.Equal(t, "processing", store.snapshot(ord.ID).Status)
}

func TestWebhookCancelledAndTimeout(t *testing.T) {
	cases := []struct {
		status     string
		wantStatus string
	}{
		{status: financing.CallbackStatusCancelled, wantStatus: "cancelled"},
		{status: financing.CallbackStatusTimeout, wantStatus: "failed"},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			ord := fundedOrder()
			store := newMemStore(ord)
			wh := newWebhook(store)

			rec := signedCallback(t, wh, tc.status, "fab-ref-1", "Order-1042")
			require.Equal(t, http.StatusOK, rec.Code)

			saved := store.snapshot(ord.ID)
			require.Equal(t, tc.wantStatus, saved.Status)
			require.Empty(t, saved.PaymentRef)
			require.Empty(t, saved.Meta)
		})
	}
}

func TestWebhookRejectsBadHashWithoutMutation(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	wh := newWebhook(store)

	rec := postCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-77", "Order-1042", "deadbeef")
	require.Equal(t, http.StatusForbidden, rec.Code)

	saved := store.snapshot(ord.ID)
	require.Equal(t, "pending", saved.Status)
	require.Len(t, saved.Meta, 2)
}

func TestWebhookRejectsNonPost(t *testing.T) {
	wh := newWebhook(newMemStore(fundedOrder()))
	req := httptest.NewRequest(http.MethodGet, "/?wc-api=finance-a-bike", nil)
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookRejectsEmptyAndUnparseableBody(t *testing.T) {
	wh := newWebhook(newMemStore(fundedOrder()))

	req := httptest.NewRequest(http.MethodPost, "/?wc-api=finance-a-bike", nil)
	rec := httptest.NewRecorder()
	wh.Handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/?wc-api=finance-a-bike", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	wh.Handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownStatusWithValidHash(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	wh := newWebhook(store)

	rec := signedCallback(t, wh, "REFUNDED", "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "pending", store.snapshot(ord.ID).Status)
}

func TestWebhookUnknownUsage(t *testing.T) {
	wh := newWebhook(newMemStore(fundedOrder()))
	rec := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-9999")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAmbiguousUsageIsRejected(t *testing.T) {
	first := fundedOrder()
	second := fundedOrder()
	second.ID = "22222222-2222-2222-2222-222222222222"
	second.Number = "1043"
	store := newMemStore(first, second)
	wh := newWebhook(store)

	rec := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "pending", store.snapshot(first.ID).Status)
	require.Equal(t, "pending", store.snapshot(second.ID).Status)
}

func TestWebhookLookupFailureIsRetryable(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	store.findErr = errTransient
	wh := newWebhook(store)

	// A store outage during the lookup is not "no order"; a 400 would make the
	// provider drop the delivery for good.
	rec := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "LOOKUP_FAILED", body.Error.Code)

	store.findErr = nil
	retry := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusOK, retry.Code)
	require.Equal(t, "processing", store.snapshot(ord.ID).Status)
}

func TestWebhookTransitionFailureIsRetryable(t *testing.T) {
	ord := fundedOrder()
	store := newMemStore(ord)
	store.applyErr = errTransient
	wh := newWebhook(store)

	rec := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// Nothing changed, so the provider's retry of the same delivery succeeds.
	store.applyErr = nil
	retry := signedCallback(t, wh, financing.CallbackStatusSuccess, "fab-ref-2", "Order-1042")
	require.Equal(t, http.StatusOK, retry.Code)
	require.Equal(t, "processing", store.snapshot(ord.ID).Status)
}
