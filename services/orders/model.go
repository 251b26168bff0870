package orders

import "time"

type Order struct {
	Number       string
	BasketUID    string
	ShopperEmail string
	Currency     string
	TotalInclTax string
	CreatedAt    time.Time
}

// PaymentSource records the gateway-side charge reference for an order.
// Written once when the order is placed; updated once when the payment is
// captured (DateCaptured is stamped).
type PaymentSource struct {
	OrderNumber     string
	Reference       string
	Currency        string
	AmountAllocated int64
	AmountDebited   int64
	DateCaptured    *time.Time
}

func (s PaymentSource) IsCaptured() bool {
	return s.DateCaptured != nil
}
