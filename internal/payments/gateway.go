// Package payments wraps the payment processor. Checkout and finalization
// code depends on the small interfaces here, never on the processor SDK.
package payments

import (
	"context"
	"errors"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

var ErrStoreNotConnected = errors.New("store has no connected payment account")

// Intent statuses the checkout flow cares about; other processor states are
// passed through verbatim.
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusSucceeded             = "succeeded"
)

// Intent is the processor-neutral view of a payment authorization.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          string
	Amount          int64 // minor units
	Metadata        map[string]string
	ReceiptEmail    string
	ShippingName    string
	ShippingAddress domain.Address
}

// CreateIntentParams describes a charge authorization scoped to a seller's
// connected account. Amount and Fee are in minor units; Fee is the platform
// cut withheld from the connected account's proceeds.
type CreateIntentParams struct {
	ConnectedAccountID string
	Amount             int64
	Fee                int64
	Metadata           map[string]string
}

type IntentClient interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id, connectedAccountID string) (*Intent, error)
}

// Account is a seller's sub-account with the processor.
type Account struct {
	ID               string
	DetailsSubmitted bool
}

type AccountClient interface {
	CreateAccount(ctx context.Context) (*Account, error)
	RetrieveAccount(ctx context.Context, id string) (*Account, error)
}
