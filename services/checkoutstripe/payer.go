package checkoutstripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/shopkit/stripecheckout/lib/myerrors"
)

//go:generate mockgen -source=payer.go -package checkoutstripe -destination payer_mock.go Payer
type Payer interface {
	UseAPIKey(key string)
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (stripe.CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntent, error)
	AttachReceiptEmail(ctx context.Context, paymentIntentID string, email string) error
	CapturePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntent, error)
}

// payerFactories holds all statically registered gateway client
// implementations, keyed by the name used in the configuration.
var payerFactories = map[string]func() Payer{}

// RegisterPayer makes a gateway client selectable by name. Call from an init
// function.
func RegisterPayer(name string, factory func() Payer) {
	payerFactories[name] = factory
}

func init() {
	RegisterPayer("stripe", NewPayer)
}

// NewPayerByName returns the gateway client registered under the given name,
// defaulting to the real one when the name is empty.
func NewPayerByName(name string) (Payer, error) {
	if name == "" {
		name = "stripe"
	}
	factory, found := payerFactories[name]
	if !found {
		return nil, fmt.Errorf("unknown payer implementation %q", name)
	}

	return factory(), nil
}

type stripePayer struct{}

func NewPayer() Payer {
	return &stripePayer{}
}

func (p *stripePayer) UseAPIKey(apiKey string) {
	stripe.Key = apiKey
}

func (p *stripePayer) CreateCheckoutSession(ctx context.Context, req SessionRequest) (stripe.CheckoutSession, error) {
	params := toSessionParams(req)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return stripe.CheckoutSession{}, myerrors.NewInvalidInputError(fmt.Errorf("error creating stripe session: %s", err))
	}

	return *sess, nil
}

func (p *stripePayer) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return stripe.PaymentIntent{}, myerrors.NewInternalError(fmt.Errorf("error fetching payment intent %s: %s", paymentIntentID, err))
	}

	return *intent, nil
}

func (p *stripePayer) AttachReceiptEmail(ctx context.Context, paymentIntentID string, email string) error {
	params := &stripe.PaymentIntentParams{
		ReceiptEmail: stripe.String(email),
	}
	params.Context = ctx

	_, err := paymentintent.Update(paymentIntentID, params)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error updating payment intent %s: %s", paymentIntentID, err))
	}

	return nil
}

func (p *stripePayer) CapturePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	intent, err := paymentintent.Capture(paymentIntentID, params)
	if err != nil {
		return stripe.PaymentIntent{}, myerrors.NewInternalError(fmt.Errorf("error capturing payment intent %s: %s", paymentIntentID, err))
	}

	return *intent, nil
}

// toSessionParams maps the validated request onto the SDK's parameter types.
// Both configured line-item shapes end up as price data because that is the
// only shape this SDK version still serializes.
func toSessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(req.Mode),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(req.CaptureMethod),
		},
		Params: stripe.Params{
			Expand: []*string{stripe.String("payment_intent")},
		},
	}

	for _, pmt := range req.PaymentMethodTypes {
		params.PaymentMethodTypes = append(params.PaymentMethodTypes, stripe.String(pmt))
	}

	if req.AutomaticTax {
		params.AutomaticTax = &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		}
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, toLineItemParams(item))
	}

	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	return params
}

func toLineItemParams(item PreparedLineItem) *stripe.CheckoutSessionLineItemParams {
	if item.PriceData != nil {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.PriceData.ProductData.Name),
		}
		if item.PriceData.ProductData.TaxCode != "" {
			productData.TaxCode = stripe.String(item.PriceData.ProductData.TaxCode)
		}
		return &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				ProductData: productData,
				Currency:    stripe.String(item.PriceData.Currency),
				UnitAmount:  stripe.Int64(item.PriceData.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		}
	}

	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(item.Name),
			},
			Currency:   stripe.String(item.Currency),
			UnitAmount: stripe.Int64(item.Amount),
		},
		Quantity: stripe.Int64(item.Quantity),
	}
}
