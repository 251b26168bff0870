package checkoutapi

import (
	"fmt"
	"net/http"
	"net/url"

	formcodec "github.com/go-playground/form/v4"

	"github.com/shopkit/stripecheckout/lib/myerrors"
)

// CheckoutRequest is the form a shop posts to start a checkout for a basket.
type CheckoutRequest struct {
	BasketUID    string  `form:"basketUid"`
	ReturnURL    string  `form:"returnUrl"`
	Shopper      Shopper `form:"shopper"`
	ShippingName string  `form:"shipping.name"`
	ShippingRate string  `form:"shipping.rate"`
}

type Shopper struct {
	Email  string `form:"email"`
	Locale string `form:"locale"`
}

func NewFromRequest(r *http.Request) (CheckoutRequest, error) {
	err := r.ParseForm()
	if err != nil {
		return CheckoutRequest{}, myerrors.NewInvalidInputError(err)
	}
	return NewFromValues(r.Form)
}

func NewFromValues(values url.Values) (CheckoutRequest, error) {
	req := CheckoutRequest{}
	err := formcodec.NewDecoder().Decode(&req, values)
	if err != nil {
		return req, fmt.Errorf("error decoding form: %s", err)
	}

	return req, nil
}

func (r CheckoutRequest) ToForm() (url.Values, error) {
	values, err := formcodec.NewEncoder().Encode(r)
	if err != nil {
		return nil, fmt.Errorf("error encoding form: %s", err)
	}

	return values, nil
}
