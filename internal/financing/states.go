package financing

import (
	"context"
	"errors"

	"github.com/noah-isme/financing-gateway/internal/order"
)

// ErrUnknownStatus marks a callback status outside the closed set.
var ErrUnknownStatus = errors.New("financing: unknown callback status")

// Transition notes recorded on the order alongside each status change.
// NotePendingFunding is written by the checkout flow when the offer succeeds.
const (
	NotePendingFunding = "Customer still needs to verify."

	notePaymentReceived = "Payment received via installment financing."
	noteCancelled       = "Payment process was canceled."
	noteTimedOut        = "Order expired."
)

// States maps funding outcomes onto the host commerce system's order-status
// set. PendingFunding is the only non-terminal state this protocol reaches;
// the other three are terminal.
type States struct {
	PendingFunding  string
	PaymentReceived string
	Cancelled       string
	TimedOut        string
}

// DefaultStates mirrors the conventional storefront status mapping.
func DefaultStates() States {
	return States{
		PendingFunding:  "pending",
		PaymentReceived: "processing",
		Cancelled:       "cancelled",
		TimedOut:        "failed",
	}
}

// StateMachine applies verified callback outcomes to orders. Every terminal
// transition clears the metadata pair atomically with the status write, which
// is what makes a replayed callback fail its order lookup instead of
// re-applying the transition.
type StateMachine struct {
	Store  order.Store
	States States
}

// Apply dispatches the verified status. SUCCESS records the provider
// reference id as the payment reference. An unrecognised status returns
// ErrUnknownStatus with no mutation.
func (m StateMachine) Apply(ctx context.Context, ord order.Order, status, referenceID string) error {
	switch status {
	case CallbackStatusSuccess:
		return m.Store.ApplyOutcome(ctx, ord.ID, m.States.PaymentReceived, notePaymentReceived, referenceID)
	case CallbackStatusCancelled:
		return m.Store.ApplyOutcome(ctx, ord.ID, m.States.Cancelled, noteCancelled, "")
	case CallbackStatusTimeout:
		return m.Store.ApplyOutcome(ctx, ord.ID, m.States.TimedOut, noteTimedOut, "")
	default:
		return ErrUnknownStatus
	}
}
