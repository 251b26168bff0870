package checkoutstripe

import (
	"context"

	"github.com/shopkit/stripecheckout/services/basketapi"
)

// MetadataHook allows a deployment to attach extra annotations to the remote
// session. Returned keys take precedence over the computed defaults.
type MetadataHook func(c context.Context, basket basketapi.Basket, items []PreparedLineItem) map[string]string

// SessionParamsHook allows a deployment to override any field of the session
// request after the defaults have been computed.
type SessionParamsHook func(c context.Context, basket basketapi.Basket, req *SessionRequest)

type Config struct {
	SecretKey      string
	PublishableKey string

	// APIVersion is the pin the deployment expects. The SDK carries its own
	// pinned version; a mismatch is logged at startup, not corrected.
	APIVersion string

	// URL templates with a single %s verb, substituted with the basket uid.
	SuccessURLTemplate string
	CancelURLTemplate  string

	// CompressToOneLineItem merges the whole basket into a single summary line.
	CompressToOneLineItem bool

	// UsePricesAPI selects the nested price-data line-item shape instead of
	// the flat name/amount tuples. The two shapes are mutually exclusive and
	// chosen once per process.
	UsePricesAPI bool

	EnableTaxComputation   bool
	DefaultProductTaxCode  string
	DefaultShippingTaxCode string

	// PayerImplementation names a statically registered payer factory.
	// Empty selects the default Stripe implementation.
	PayerImplementation string

	ExtraSessionMetadata MetadataHook      `json:"-"`
	ExtraSessionParams   SessionParamsHook `json:"-"`
}

// See https://docs.stripe.com/tax/tax-codes?tax_code=shipping
const defaultShippingTaxCode = "txcd_92010001"

func (cfg Config) shippingTaxCode() string {
	if cfg.DefaultShippingTaxCode != "" {
		return cfg.DefaultShippingTaxCode
	}
	return defaultShippingTaxCode
}
