package financing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/financing-gateway/internal/common"
	"github.com/noah-isme/financing-gateway/internal/obs"
	"github.com/noah-isme/financing-gateway/internal/order"
)

// Webhook is the HTTP entry point for provider callbacks. It glues transport
// parsing to hash verification and the order state machine.
//
// Processing is idempotent in effect without a dedup store: once a terminal
// callback has cleared the metadata pair, an identical retry misses the usage
// lookup and is answered with 400.
type Webhook struct {
	Store     order.Store
	SecretKey string
	Machine   StateMachine
	Logger    zerolog.Logger
}

type callbackPayload struct {
	Status           string `json:"status"`
	ReferenceID      string `json:"referenceId"`
	Usage            string `json:"usage"`
	VerificationHash string `json:"verificationHash"`
}

// Handle processes one callback delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Machine.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "callback endpoint unavailable", nil)
		return
	}
	ctx, span := otel.Tracer("financing.Webhook").Start(r.Context(), "FinancingWebhook.Handle")
	defer span.End()

	statusLabel := "unknown"
	outcome := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("financing.callback.status", statusLabel),
			attribute.String("financing.callback.outcome", outcome),
		)
		if obs.CallbackTotal != nil {
			obs.CallbackTotal.WithLabelValues(statusLabel, outcome).Inc()
		}
	}()

	if r.Method != http.MethodPost {
		outcome = "method_not_allowed"
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "callback must be POSTed", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		outcome = "bad_request"
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "empty payload", nil)
		return
	}
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		outcome = "bad_request"
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unparseable payload", nil)
		return
	}
	if trimmed := strings.TrimSpace(payload.Status); trimmed != "" {
		statusLabel = strings.ToLower(trimmed)
	}

	if !VerifyCallback(h.SecretKey, payload.Status, payload.ReferenceID, payload.Usage, payload.VerificationHash) {
		outcome = "unverified"
		h.Logger.Warn().Str("usage", payload.Usage).Msg("callback verification failed")
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "verification failed", nil)
		return
	}

	ord, err := h.Store.FindByUsage(ctx, payload.Usage)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			// Store outage, not a missing order. Nothing was mutated; answer
			// retryable so the provider redelivers.
			outcome = "lookup_failed"
			span.RecordError(err)
			h.Logger.Error().Err(err).Str("usage", payload.Usage).Msg("order lookup failed")
			common.JSONError(w, http.StatusInternalServerError, "LOOKUP_FAILED", "order lookup failed", nil)
			return
		}
		outcome = "not_found"
		common.JSONError(w, http.StatusBadRequest, "ORDER_NOT_FOUND", "no order for usage", nil)
		return
	}
	span.SetAttributes(attribute.String("order.number", ord.Number))

	if err := h.Machine.Apply(ctx, ord, payload.Status, payload.ReferenceID); err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			outcome = "unknown_status"
			common.JSONError(w, http.StatusBadRequest, "UNKNOWN_STATUS", "unsupported callback status", nil)
			return
		}
		// Transition and metadata clear are transactional, so this failure left
		// no partial state; the provider may retry the delivery.
		span.RecordError(err)
		h.Logger.Error().Err(err).Str("order", ord.Number).Str("status", payload.Status).
			Msg("funding transition failed")
		common.JSONError(w, http.StatusInternalServerError, "TRANSITION_FAILED", "order update failed", nil)
		return
	}

	outcome = "success"
	h.Logger.Info().Str("order", ord.Number).Str("status", payload.Status).Msg("funding callback processed")
	common.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
