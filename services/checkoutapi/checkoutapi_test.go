package checkoutapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormRoundtrip(t *testing.T) {
	req := CheckoutRequest{
		BasketUID: "123",
		ReturnURL: "http://localhost:8080/basket/123/checkout",
		Shopper: Shopper{
			Email:  "eva@example.com",
			Locale: "nl-nl",
		},
		ShippingName: "Standard",
		ShippingRate: "4.95",
	}

	values, err := req.ToForm()
	assert.NoError(t, err)

	decoded, err := NewFromValues(values)
	assert.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestNewFromValues(t *testing.T) {
	values, err := url.ParseQuery(`basketUid=123&returnUrl=http://a.b/c&shopper.email=eva@example.com&shipping.name=Standard&shipping.rate=4.95`)
	assert.NoError(t, err)

	decoded, err := NewFromValues(values)
	assert.NoError(t, err)
	assert.Equal(t, "123", decoded.BasketUID)
	assert.Equal(t, "http://a.b/c", decoded.ReturnURL)
	assert.Equal(t, "eva@example.com", decoded.Shopper.Email)
	assert.Equal(t, "4.95", decoded.ShippingRate)
}
