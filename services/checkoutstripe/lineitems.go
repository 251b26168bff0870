package checkoutstripe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shopkit/stripecheckout/services/basketapi"
)

// ErrMultipleTaxCodes is returned when a basket that must be compressed to a
// single line item carries more than one tax classification. The gateway
// supports only one classification per line, so this fails fast instead of
// guessing.
var ErrMultipleTaxCodes = errors.New("multiple tax codes in one basket")

// PaymentItem is a single priced unit of sale, built transiently from a basket
// line or a computed shipping charge. It only lives for the duration of one
// session build.
type PaymentItem struct {
	Title            string
	UnitPriceInclTax decimal.Decimal
	Currency         string
	Quantity         int64
	TaxCode          string
	IsShipping       bool
}

// PreparedLineItem is the typed per-shape request payload for one line.
// Exactly one of the flat fields or PriceData is populated, depending on the
// configured API shape.
type PreparedLineItem struct {
	// flat shape
	Name     string
	Amount   int64
	Currency string

	Quantity int64

	// nested price-data shape
	PriceData *PriceData
}

type PriceData struct {
	ProductData ProductData
	Currency    string
	UnitAmount  int64
}

type ProductData struct {
	Name    string
	TaxCode string
}

// rawLineItems splits every basket line into one item per (price, quantity)
// pair of its price breakdown and appends the shipping charge when required.
func (s *service) rawLineItems(basket basketapi.Basket, shippingMethod basketapi.ShippingMethod) ([]PaymentItem, error) {
	rawItems := []PaymentItem{}

	for _, line := range basket.Lines {
		breakdown, err := line.PriceBreakdown()
		if err != nil {
			return nil, err
		}
		for _, pq := range breakdown {
			rawItems = append(rawItems, PaymentItem{
				Title:            line.ProductName,
				UnitPriceInclTax: pq.UnitPriceInclTax,
				Currency:         line.Currency,
				Quantity:         pq.Quantity,
				TaxCode:          s.resolveTaxCode(line.TaxCode, false),
			})
		}
	}

	if basket.ShippingRequired && shippingMethod != nil {
		price := shippingMethod.Calculate(basket)
		rawItems = append(rawItems, PaymentItem{
			Title:            shippingMethod.Name(),
			UnitPriceInclTax: price.InclTax,
			Currency:         price.Currency,
			Quantity:         1,
			TaxCode:          s.resolveTaxCode("", true),
			IsShipping:       true,
		})
	}

	return rawItems, nil
}

// resolveTaxCode defaults the tax classification per item kind. A non-empty
// classification on the basket line itself always wins.
func (s *service) resolveTaxCode(lineTaxCode string, isShipping bool) string {
	if lineTaxCode != "" {
		return lineTaxCode
	}
	if isShipping {
		return s.cfg.shippingTaxCode()
	}
	return s.cfg.DefaultProductTaxCode
}

func (s *service) prepareLineItems(rawItems []PaymentItem, total basketapi.Price) ([]PreparedLineItem, error) {
	if s.cfg.CompressToOneLineItem {
		item, err := s.compressToOneLineItem(rawItems, total)
		if err != nil {
			return nil, err
		}
		return []PreparedLineItem{item}, nil
	}

	preparedItems := make([]PreparedLineItem, 0, len(rawItems))
	for _, rawItem := range rawItems {
		amount := amountInMinorUnits(rawItem.UnitPriceInclTax, rawItem.Currency)
		preparedItems = append(preparedItems,
			s.prepareLineItem(rawItem.Title, amount, rawItem.Currency, rawItem.Quantity, rawItem.TaxCode))
	}

	return preparedItems, nil
}

// compressToOneLineItem merges all raw items into a single summary line whose
// amount is the converted order total.
func (s *service) compressToOneLineItem(rawItems []PaymentItem, total basketapi.Price) (PreparedLineItem, error) {
	taxCode, err := singleTaxCode(rawItems)
	if err != nil {
		return PreparedLineItem{}, err
	}

	parts := make([]string, 0, len(rawItems))
	for _, rawItem := range rawItems {
		parts = append(parts, fmt.Sprintf("%dx%s", rawItem.Quantity, rawItem.Title))
	}

	name := strings.Join(parts, ", ")
	amount := amountInMinorUnits(total.InclTax, total.Currency)

	return s.prepareLineItem(name, amount, total.Currency, 1, taxCode), nil
}

// singleTaxCode returns the one classification shared by all classified
// items, or ErrMultipleTaxCodes when two distinct non-empty codes collide.
// Items without a classification never conflict.
func singleTaxCode(rawItems []PaymentItem) (string, error) {
	taxCode := ""
	for _, rawItem := range rawItems {
		if rawItem.TaxCode == "" {
			continue
		}
		if taxCode == "" {
			taxCode = rawItem.TaxCode
			continue
		}
		if rawItem.TaxCode != taxCode {
			return "", ErrMultipleTaxCodes
		}
	}

	return taxCode, nil
}

func (s *service) prepareLineItem(name string, amount int64, currency string, quantity int64, taxCode string) PreparedLineItem {
	if s.cfg.UsePricesAPI {
		priceData := &PriceData{
			ProductData: ProductData{
				Name: name,
			},
			Currency:   currency,
			UnitAmount: amount,
		}
		if s.cfg.EnableTaxComputation && taxCode != "" {
			priceData.ProductData.TaxCode = taxCode
		}
		return PreparedLineItem{
			PriceData: priceData,
			Quantity:  quantity,
		}
	}

	return PreparedLineItem{
		Name:     name,
		Amount:   amount,
		Currency: currency,
		Quantity: quantity,
	}
}
