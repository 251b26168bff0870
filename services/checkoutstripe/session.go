package checkoutstripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/services/basketapi"
)

// SessionRequest is the fully validated request for one remote
// checkout-session creation. Every field is resolved before anything leaves
// the process, so a failed validation never costs a network call.
type SessionRequest struct {
	Mode               string
	PaymentMethodTypes []string
	CustomerEmail      string
	ClientReferenceID  string
	SuccessURL         string
	CancelURL          string
	CaptureMethod      string
	AutomaticTax       bool
	LineItems          []PreparedLineItem
	Metadata           map[string]string
}

func (req SessionRequest) validate() error {
	if req.SuccessURL == "" || req.CancelURL == "" {
		return myerrors.NewInvalidInputError(fmt.Errorf("missing redirect urls"))
	}
	if len(req.LineItems) == 0 {
		return myerrors.NewInvalidInputError(fmt.Errorf("no line items"))
	}
	for i, item := range req.LineItems {
		if item.Quantity <= 0 {
			return myerrors.NewInvalidInputError(fmt.Errorf("line item %d: non-positive quantity", i))
		}
		if item.PriceData == nil && item.Currency == "" {
			return myerrors.NewInvalidInputError(fmt.Errorf("line item %d: missing currency", i))
		}
	}

	return nil
}

// buildSessionMetadata assembles the metadata persisted on the remote session.
// Voucher discounts are summarized in a single human readable entry.
func (s *service) buildSessionMetadata(c context.Context, basket basketapi.Basket, lineItems []PreparedLineItem) map[string]string {
	metadata := map[string]string{
		"basket_uid": basket.UID,
	}
	if basket.OrderNumber != "" {
		metadata["order_number"] = basket.OrderNumber
	}

	if len(basket.Vouchers) > 0 {
		parts := make([]string, 0, len(basket.Vouchers))
		for _, voucher := range basket.Vouchers {
			parts = append(parts, fmt.Sprintf("%s (%s)", voucher.Name, voucher.Amount))
		}
		metadata["discounts"] = strings.Join(parts, ", ")
	}

	if s.cfg.ExtraSessionMetadata != nil {
		for key, value := range s.cfg.ExtraSessionMetadata(c, basket, lineItems) {
			metadata[key] = value
		}
	}

	return metadata
}

func (s *service) buildSessionRequest(c context.Context, basket basketapi.Basket, lineItems []PreparedLineItem, checkoutUID string) (SessionRequest, error) {
	req := SessionRequest{
		Mode:               "payment",
		PaymentMethodTypes: []string{"card"},
		CustomerEmail:      basket.ShopperEmail,
		ClientReferenceID:  basket.UID,
		SuccessURL:         fmt.Sprintf(s.cfg.SuccessURLTemplate, checkoutUID),
		CancelURL:          fmt.Sprintf(s.cfg.CancelURLTemplate, checkoutUID),
		CaptureMethod:      "manual",
		AutomaticTax:       s.cfg.EnableTaxComputation,
		LineItems:          lineItems,
		Metadata:           s.buildSessionMetadata(c, basket, lineItems),
	}

	if s.cfg.ExtraSessionParams != nil {
		s.cfg.ExtraSessionParams(c, basket, &req)
	}

	err := req.validate()
	if err != nil {
		return SessionRequest{}, err
	}

	return req, nil
}
