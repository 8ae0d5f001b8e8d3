package order

import (
	"context"
	"errors"
)

// Metadata keys holding the financing reference state on an order. Both keys
// are written together when an offer succeeds and deleted together when a
// terminal callback is processed.
const (
	MetaRegisterURL = "fab_register_url"
	MetaUsage       = "fab_usage"
)

// ErrNotFound is returned when an order cannot be located. Lookups by usage
// token also return it when the match is ambiguous.
var ErrNotFound = errors.New("order not found")

// LineItem is a purchased position on an order.
type LineItem struct {
	Description string
	UnitAmount  float64
	Quantity    int
}

// Order is the subset of the host commerce system's order the gateway reads
// and writes. Status values are host statuses, not gateway states; the
// configured state mapping decides which host status each funding outcome
// lands on.
type Order struct {
	ID            string
	Number        string
	Email         string
	Phone         string
	GivenName     string
	FamilyName    string
	Country       string
	Postcode      string
	City          string
	Street        string
	Items         []LineItem
	ShippingTotal float64
	Total         float64
	Currency      string
	Status        string
	PaymentRef    string
	Meta          map[string]string
}

// Usage returns the usage token stored on the order, if any.
func (o Order) Usage() string {
	return o.Meta[MetaUsage]
}

// Store is the order read/write contract the host commerce system fulfils.
//
// FindByUsage must resolve to exactly one order; zero or multiple matches are
// reported as ErrNotFound rather than an arbitrary pick. SaveFinancingRef
// writes the metadata pair in one step, and ApplyOutcome performs the status
// transition, payment reference write and metadata clear atomically so a
// failed status write can never leave a dangling token behind.
type Store interface {
	Get(ctx context.Context, id string) (Order, error)
	FindByUsage(ctx context.Context, usage string) (Order, error)
	SaveFinancingRef(ctx context.Context, id, encodedURL, usage string) error
	UpdateStatus(ctx context.Context, id, status, note string) error
	ApplyOutcome(ctx context.Context, id, status, note, paymentRef string) error
}
