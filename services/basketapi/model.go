package basketapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopkit/stripecheckout/lib/myerrors"
)

type BasketState string

const (
	// BasketStateOpen allows edits; the only state from which a checkout can start.
	BasketStateOpen BasketState = "open"
	// BasketStateFrozen is entered when a payment session is created against the
	// basket; no further line additions are permitted.
	BasketStateFrozen BasketState = "frozen"
	// BasketStateSubmitted is entered when payment for the basket was captured.
	BasketStateSubmitted BasketState = "submitted"
)

type Basket struct {
	UID              string
	CreatedAt        time.Time
	LastModified     *time.Time
	State            BasketState
	Currency         string
	ShopperEmail     string
	Lines            []Line
	Vouchers         []VoucherDiscount
	ShippingRequired bool
	ReturnURL        string
	PaymentStatus    string
	OrderNumber      string
}

// Line is a single basket entry. Prices are carried as decimal strings so the
// record can be persisted as-is; use PriceBreakdown for arithmetic.
type Line struct {
	ProductName string
	Quantity    int64
	UnitPrice   string
	Currency    string
	TaxCode     string

	// Tranches is non-empty when discounts apply non-uniformly across the
	// quantity of this line. When set, it replaces the plain UnitPrice*Quantity
	// breakdown.
	Tranches []Tranche
}

type Tranche struct {
	UnitPrice     string
	DiscountLabel string
	Quantity      int64
}

type PriceQuantity struct {
	UnitPriceInclTax decimal.Decimal
	DiscountLabel    string
	Quantity         int64
}

type VoucherDiscount struct {
	Name   string
	Amount string
}

type Price struct {
	Currency string
	InclTax  decimal.Decimal
}

// PriceBreakdown splits the line into one (price, quantity) pair per tranche,
// so partial quantities with different discounted prices yield separate pairs.
func (l Line) PriceBreakdown() ([]PriceQuantity, error) {
	if len(l.Tranches) == 0 {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("error parsing unit-price %q of line %s: %s", l.UnitPrice, l.ProductName, err)
		}
		return []PriceQuantity{
			{UnitPriceInclTax: price, Quantity: l.Quantity},
		}, nil
	}

	breakdown := make([]PriceQuantity, 0, len(l.Tranches))
	for _, tr := range l.Tranches {
		price, err := decimal.NewFromString(tr.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("error parsing tranche-price %q of line %s: %s", tr.UnitPrice, l.ProductName, err)
		}
		breakdown = append(breakdown, PriceQuantity{
			UnitPriceInclTax: price,
			DiscountLabel:    tr.DiscountLabel,
			Quantity:         tr.Quantity,
		})
	}

	return breakdown, nil
}

// Total sums all line breakdowns. Shipping is not included; the shipping
// charge is calculated separately by a ShippingMethod.
func (b Basket) Total() (Price, error) {
	total := decimal.Zero
	for _, line := range b.Lines {
		breakdown, err := line.PriceBreakdown()
		if err != nil {
			return Price{}, err
		}
		for _, pq := range breakdown {
			total = total.Add(pq.UnitPriceInclTax.Mul(decimal.NewFromInt(pq.Quantity)))
		}
	}

	return Price{Currency: b.Currency, InclTax: total}, nil
}

// Freeze locks the basket against further edits. Irreversible except via Thaw.
func (b *Basket) Freeze() error {
	if b.State != BasketStateOpen {
		return myerrors.NewInvalidInputError(fmt.Errorf("basket %s cannot be frozen from state %s", b.UID, b.State))
	}
	b.State = BasketStateFrozen
	return nil
}

// Thaw reopens a frozen basket after a cancelled checkout.
func (b *Basket) Thaw() error {
	if b.State != BasketStateFrozen {
		return myerrors.NewInvalidInputError(fmt.Errorf("basket %s cannot be thawed from state %s", b.UID, b.State))
	}
	b.State = BasketStateOpen
	return nil
}

// Submit consumes a frozen basket once its payment was captured.
func (b *Basket) Submit() error {
	if b.State != BasketStateFrozen {
		return myerrors.NewInvalidInputError(fmt.Errorf("basket %s cannot be submitted from state %s", b.UID, b.State))
	}
	b.State = BasketStateSubmitted
	return nil
}

func (b Basket) ProductSummary() string {
	parts := []string{}
	for _, line := range b.Lines {
		parts = append(parts, fmt.Sprintf("%dx %s", line.Quantity, line.ProductName))
	}

	return strings.Join(parts, ", ")
}
