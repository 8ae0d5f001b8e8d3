package common_test

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/financing-gateway/internal/common"
)

func TestSecureContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, common.SecureContext(req))

	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	require.True(t, common.SecureContext(req))

	req.Header.Set("X-Forwarded-Proto", "http")
	require.False(t, common.SecureContext(req))

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	require.True(t, common.SecureContext(direct))

	require.False(t, common.SecureContext(nil))
}

func TestJSONErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	common.JSONError(rec, http.StatusForbidden, "FORBIDDEN", "verification failed", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "FORBIDDEN", body.Error.Code)
	require.Equal(t, "verification failed", body.Error.Message)
}

func TestAppErrorChain(t *testing.T) {
	cause := errors.New("boom")
	appErr := common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, cause)

	wrapped := fmt.Errorf("processing: %w", appErr)
	got, ok := common.AsAppError(wrapped)
	require.True(t, ok)
	require.Equal(t, "ORDER_NOT_FOUND", got.Code)
	require.Equal(t, http.StatusNotFound, got.HTTPStatus)
	require.ErrorIs(t, wrapped, cause)

	_, ok = common.AsAppError(errors.New("plain"))
	require.False(t, ok)
}
