package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

// StripeClient implements IntentClient and AccountClient against the live
// Stripe API using direct charges on connected accounts.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{api: client.New(secretKey, nil)}
}

func (c *StripeClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	piParams := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:               stripe.Int64(params.Amount),
		Currency:             stripe.String(string(stripe.CurrencyUSD)),
		ApplicationFeeAmount: stripe.Int64(params.Fee),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	piParams.SetStripeAccount(params.ConnectedAccountID)
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(piParams)
	if err != nil {
		return nil, err
	}

	return FromStripeIntent(pi), nil
}

func (c *StripeClient) RetrieveIntent(ctx context.Context, id, connectedAccountID string) (*Intent, error) {
	piParams := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	piParams.SetStripeAccount(connectedAccountID)

	pi, err := c.api.PaymentIntents.Get(id, piParams)
	if err != nil {
		return nil, err
	}

	return FromStripeIntent(pi), nil
}

func (c *StripeClient) CreateAccount(ctx context.Context) (*Account, error) {
	acctParams := &stripe.AccountParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Type: stripe.String(string(stripe.AccountTypeExpress)),
	}

	acct, err := c.api.Accounts.New(acctParams)
	if err != nil {
		return nil, err
	}

	return &Account{ID: acct.ID, DetailsSubmitted: acct.DetailsSubmitted}, nil
}

func (c *StripeClient) RetrieveAccount(ctx context.Context, id string) (*Account, error) {
	acctParams := &stripe.AccountParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	acct, err := c.api.Accounts.GetByID(id, acctParams)
	if err != nil {
		return nil, err
	}

	return &Account{ID: acct.ID, DetailsSubmitted: acct.DetailsSubmitted}, nil
}

// FromStripeIntent maps the wire payment intent into the neutral form the
// rest of the codebase works with.
func FromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Metadata:     pi.Metadata,
		ReceiptEmail: pi.ReceiptEmail,
	}

	if pi.Shipping != nil {
		intent.ShippingName = pi.Shipping.Name
		if pi.Shipping.Address != nil {
			intent.ShippingAddress = domain.Address{
				Line1:      pi.Shipping.Address.Line1,
				Line2:      pi.Shipping.Address.Line2,
				City:       pi.Shipping.Address.City,
				State:      pi.Shipping.Address.State,
				PostalCode: pi.Shipping.Address.PostalCode,
				Country:    pi.Shipping.Address.Country,
			}
		}
	}

	return intent
}
