package checkoutapi

import "time"

// CheckoutContext is the request-scoped state kept between starting a checkout
// and the buyer returning from the hosted payment page. The gateway remains
// the authoritative owner of the session; only the two identifiers are cached.
type CheckoutContext struct {
	BasketUID           string
	CreatedAt           time.Time
	LastModified        *time.Time
	OriginalReturnURL   string
	SessionID           string
	PaymentIntentID     string
	ShopperEmail        string
	Status              string
	WebhookEventName    string
	WebhookEventSuccess bool
}
