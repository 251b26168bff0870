package basketapi

import "github.com/shopspring/decimal"

type ShippingMethod interface {
	Name() string
	Calculate(b Basket) Price
}

// FlatRateShipping charges a fixed fee per basket.
type FlatRateShipping struct {
	Label    string
	Rate     string
	Currency string
}

func (m FlatRateShipping) Name() string {
	return m.Label
}

func (m FlatRateShipping) Calculate(b Basket) Price {
	rate, err := decimal.NewFromString(m.Rate)
	if err != nil {
		rate = decimal.Zero
	}

	return Price{Currency: m.Currency, InclTax: rate}
}
