package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/financing-gateway/internal/common"
	"github.com/noah-isme/financing-gateway/internal/financing"
)

// Handler exposes the checkout-side financing endpoint to the storefront.
type Handler struct {
	Svc *Service
}

type checkoutReq struct {
	OrderID string `json:"orderId"`
}

// Financing starts the installment flow for an order and returns the provider
// redirect URL the shopper should be sent to.
func (h *Handler) Financing(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "checkout unavailable", nil)
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}

	result, err := h.Svc.Process(r.Context(), req.OrderID, common.SecureContext(r))
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
			return
		}
		if errors.Is(err, financing.ErrProviderUnavailable) || errors.Is(err, financing.ErrMalformedResponse) {
			common.JSONError(w, http.StatusBadGateway, "OFFER_FAILED", "financing offer could not be created", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, result)
}
