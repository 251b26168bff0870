package checkoutstripe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/checkoutapi"
	"github.com/shopkit/stripecheckout/services/checkoutevents"
	"github.com/shopkit/stripecheckout/services/orders"
)

const (
	statusSuccess = "success"
	statusCancel  = "cancel"
)

// FriendlyDeclineMessage and FriendlyErrorMessage are safe to show to a
// shopper. The underlying gateway error is logged, never displayed.
const (
	FriendlyDeclineMessage = "Your payment was declined. You have not been charged. Please try another card."
	FriendlyErrorMessage   = "Something went wrong while processing your payment. You have not been charged."
)

type service struct {
	cfg           Config
	payer         Payer
	logger        mylog.Logger
	nower         mytime.Nower
	uuider        myuuid.UUIDer
	basketStore   mystore.Store[basketapi.Basket]
	checkoutStore mystore.Store[checkoutapi.CheckoutContext]
	orderStore    mystore.Store[orders.Order]
	sourceStore   mystore.Store[orders.PaymentSource]
	publisher     mypublisher.Publisher
}

// Use dependency injection to isolate the infrastructure and easy testing
func newService(cfg Config, payer Payer, logger mylog.Logger, nower mytime.Nower, uuider myuuid.UUIDer,
	basketStore mystore.Store[basketapi.Basket], checkoutStore mystore.Store[checkoutapi.CheckoutContext],
	orderStore mystore.Store[orders.Order], sourceStore mystore.Store[orders.PaymentSource],
	publisher mypublisher.Publisher) (*service, error) {

	payer.UseAPIKey(cfg.SecretKey)

	s := &service{
		cfg:           cfg,
		payer:         payer,
		logger:        logger,
		nower:         nower,
		uuider:        uuider,
		basketStore:   basketStore,
		checkoutStore: checkoutStore,
		orderStore:    orderStore,
		sourceStore:   sourceStore,
		publisher:     publisher,
	}

	if cfg.APIVersion != "" && cfg.APIVersion != stripe.APIVersion {
		logger.Log(context.Background(), "", mylog.SeverityWarn,
			"Configured api version %s differs from sdk pinned version %s", cfg.APIVersion, stripe.APIVersion)
	}

	return s, nil
}

func (s *service) CreateTopics(c context.Context) error {
	err := s.publisher.CreateTopic(c, checkoutevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", checkoutevents.TopicName, err)
	}

	return nil
}

// startCheckout freezes the basket and starts a hosted checkout session on
// the payment platform. The session request is fully built and validated
// before the basket is touched, so a build error leaves the basket open.
func (s *service) startCheckout(c context.Context, req checkoutapi.CheckoutRequest) (string, error) {
	now := s.nower.Now()

	s.logger.Log(c, req.BasketUID, mylog.SeverityInfo, "Start checkout for basket %s", req.BasketUID)

	basket, found, err := s.basketStore.Get(c, req.BasketUID)
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error fetching basket %s: %s", req.BasketUID, err))
	}
	if !found {
		return "", myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", req.BasketUID))
	}
	if req.Shopper.Email != "" {
		basket.ShopperEmail = req.Shopper.Email
	}
	if req.ReturnURL != "" {
		basket.ReturnURL = req.ReturnURL
	}

	sessionRequest, err := s.buildCheckoutSessionRequest(c, basket, s.shippingMethod(req, basket))
	if err != nil {
		return "", err
	}

	err = basket.Freeze()
	if err != nil {
		return "", err
	}
	basket.LastModified = &now
	err = s.basketStore.Put(c, basket.UID, basket)
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error storing basket: %s", err))
	}

	// The one and only remote call of this flow
	session, err := s.payer.CreateCheckoutSession(c, sessionRequest)
	if err != nil {
		s.thawBasket(c, basket.UID)
		return "", err
	}

	err = s.checkoutStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent

		// Store checkout context because we need it later again
		err = s.checkoutStore.Put(c, basket.UID, checkoutapi.CheckoutContext{
			BasketUID:         basket.UID,
			CreatedAt:         now,
			OriginalReturnURL: basket.ReturnURL,
			SessionID:         session.ID,
			PaymentIntentID:   paymentIntentID(session),
			ShopperEmail:      basket.ShopperEmail,
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error storing checkout: %s", err))
		}

		err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutStarted{
			CheckoutUID:   basket.UID,
			AmountInCents: session.AmountTotal,
			Currency:      string(session.Currency),
			ShopperEmail:  basket.ShopperEmail,
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error publishing event: %s", err))
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return session.URL, nil
}

// buildCheckoutSessionRequest performs the complete local build: convert the
// basket into raw items, prepare them into the configured shape and wrap them
// in a validated session request.
func (s *service) buildCheckoutSessionRequest(c context.Context, basket basketapi.Basket, shippingMethod basketapi.ShippingMethod) (SessionRequest, error) {
	rawItems, err := s.rawLineItems(basket, shippingMethod)
	if err != nil {
		return SessionRequest{}, myerrors.NewInvalidInputError(fmt.Errorf("error breaking down basket %s: %s", basket.UID, err))
	}

	total, err := basket.Total()
	if err != nil {
		return SessionRequest{}, myerrors.NewInvalidInputError(fmt.Errorf("error totalling basket %s: %s", basket.UID, err))
	}
	if basket.ShippingRequired && shippingMethod != nil {
		shipping := shippingMethod.Calculate(basket)
		total.InclTax = total.InclTax.Add(shipping.InclTax)
	}

	lineItems, err := s.prepareLineItems(rawItems, total)
	if err != nil {
		if errors.Is(err, ErrMultipleTaxCodes) {
			return SessionRequest{}, myerrors.NewInvalidInputError(err)
		}
		return SessionRequest{}, err
	}

	return s.buildSessionRequest(c, basket, lineItems, basket.UID)
}

func (s *service) shippingMethod(req checkoutapi.CheckoutRequest, basket basketapi.Basket) basketapi.ShippingMethod {
	if !basket.ShippingRequired {
		return nil
	}

	return basketapi.FlatRateShipping{
		Label:    req.ShippingName,
		Rate:     req.ShippingRate,
		Currency: basket.Currency,
	}
}

func (s *service) thawBasket(c context.Context, basketUID string) {
	basket, found, err := s.basketStore.Get(c, basketUID)
	if err != nil || !found {
		s.logger.Log(c, basketUID, mylog.SeverityError, "Cannot re-open basket %s after failed session creation", basketUID)
		return
	}
	err = basket.Thaw()
	if err != nil {
		return
	}
	err = s.basketStore.Put(c, basketUID, basket)
	if err != nil {
		s.logger.Log(c, basketUID, mylog.SeverityError, "Error storing re-opened basket %s: %s", basketUID, err)
	}
}

// finalizeSuccess handles the shopper returning from a completed payment
// page: submit the basket, place the order and capture the pre-authorized
// amount.
func (s *service) finalizeSuccess(c context.Context, basketUID string) (string, error) {
	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Redirect (start): checkout completed for basket %s", basketUID)

	now := s.nower.Now()

	orderNumber := ""
	adjustedReturnURL := ""
	err := s.checkoutStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent

		checkoutContext, found, err := s.checkoutStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching checkout with uid %s: %s", basketUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("checkout with uid %s not found", basketUID))
		}

		basket, found, err := s.basketStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching basket %s: %s", basketUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", basketUID))
		}

		if basket.OrderNumber != "" {
			// Shopper refreshed the success page
			orderNumber = basket.OrderNumber
			adjustedReturnURL, err = addStatusQueryParam(checkoutContext.OriginalReturnURL, statusSuccess)
			return err
		}

		orderNumber, err = s.placeOrder(c, &basket, checkoutContext, now)
		if err != nil {
			return err
		}

		checkoutContext.Status = statusSuccess
		checkoutContext.LastModified = &now
		err = s.checkoutStore.Put(c, basketUID, checkoutContext)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		adjustedReturnURL, err = addStatusQueryParam(checkoutContext.OriginalReturnURL, statusSuccess)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error adjusting url: %s", err))
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	err = s.captureOrder(c, orderNumber)
	if err != nil {
		return "", err
	}

	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Redirect (done): checkout completed for basket %s under order %s", basketUID, orderNumber)

	return adjustedReturnURL, nil
}

// placeOrder submits the basket and stores the order with its payment source.
func (s *service) placeOrder(c context.Context, basket *basketapi.Basket, checkoutContext checkoutapi.CheckoutContext, now time.Time) (string, error) {
	err := basket.Submit()
	if err != nil {
		return "", err
	}

	total, err := basket.Total()
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error totalling basket %s: %s", basket.UID, err))
	}

	orderNumber := s.uuider.Create()
	basket.OrderNumber = orderNumber
	basket.PaymentStatus = "authorized"
	basket.LastModified = &now

	err = s.basketStore.Put(c, basket.UID, *basket)
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error storing basket: %s", err))
	}

	err = s.orderStore.Put(c, orderNumber, orders.Order{
		Number:       orderNumber,
		BasketUID:    basket.UID,
		ShopperEmail: checkoutContext.ShopperEmail,
		Currency:     total.Currency,
		TotalInclTax: total.InclTax.String(),
		CreatedAt:    now,
	})
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error storing order: %s", err))
	}

	err = s.sourceStore.Put(c, orderNumber, orders.PaymentSource{
		OrderNumber:     orderNumber,
		Reference:       checkoutContext.PaymentIntentID,
		Currency:        total.Currency,
		AmountAllocated: amountInMinorUnits(total.InclTax, total.Currency),
	})
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error storing payment source: %s", err))
	}

	return orderNumber, nil
}

// finalizeCancel handles the shopper abandoning the payment page: the basket
// is re-opened for editing.
func (s *service) finalizeCancel(c context.Context, basketUID string) (string, error) {
	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Redirect (start): checkout cancelled for basket %s", basketUID)

	now := s.nower.Now()

	adjustedReturnURL := ""
	err := s.checkoutStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent

		checkoutContext, found, err := s.checkoutStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching checkout with uid %s: %s", basketUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("checkout with uid %s not found", basketUID))
		}

		basket, found, err := s.basketStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching basket %s: %s", basketUID, err))
		}
		if found && basket.State == basketapi.BasketStateFrozen {
			err = basket.Thaw()
			if err != nil {
				return err
			}
			basket.LastModified = &now
			err = s.basketStore.Put(c, basketUID, basket)
			if err != nil {
				return myerrors.NewInternalError(fmt.Errorf("error storing basket: %s", err))
			}
		}

		checkoutContext.Status = statusCancel
		checkoutContext.LastModified = &now
		err = s.checkoutStore.Put(c, basketUID, checkoutContext)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		adjustedReturnURL, err = addStatusQueryParam(checkoutContext.OriginalReturnURL, statusCancel)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error adjusting url: %s", err))
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Redirect (done): checkout cancelled for basket %s", basketUID)

	return adjustedReturnURL, nil
}

// captureOrder debits the pre-authorized payment of an already placed order.
// Both lookups fail hard before any remote call is made.
func (s *service) captureOrder(c context.Context, orderNumber string) error {
	now := s.nower.Now()

	order, found, err := s.orderStore.Get(c, orderNumber)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error fetching order %s: %s", orderNumber, err))
	}
	if !found {
		s.logger.Log(c, orderNumber, mylog.SeverityError, "Cannot capture: order %s not found", orderNumber)
		return myerrors.NewNotFoundError(fmt.Errorf("order with number %s not found", orderNumber))
	}

	source, found, err := s.sourceStore.Get(c, orderNumber)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error fetching payment source of order %s: %s", orderNumber, err))
	}
	if !found {
		s.logger.Log(c, orderNumber, mylog.SeverityError, "Cannot capture: payment source of order %s not found", orderNumber)
		return myerrors.NewNotFoundError(fmt.Errorf("payment source of order %s not found", orderNumber))
	}
	if source.IsCaptured() {
		// A payment-intent can only be captured once
		s.logger.Log(c, orderNumber, mylog.SeverityInfo, "Payment of order %s was already captured at %s", orderNumber, source.DateCaptured)
		return nil
	}

	if order.ShopperEmail != "" {
		err = s.payer.AttachReceiptEmail(c, source.Reference, order.ShopperEmail)
		if err != nil {
			return err
		}
	}

	intent, err := s.payer.CapturePaymentIntent(c, source.Reference)
	if err != nil {
		return err
	}

	source.AmountDebited = intent.AmountReceived
	source.DateCaptured = &now
	err = s.sourceStore.Put(c, orderNumber, source)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing payment source: %s", err))
	}

	err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.PaymentCaptured{
		CheckoutUID:   order.BasketUID,
		OrderNumber:   orderNumber,
		Reference:     source.Reference,
		AmountInCents: source.AmountDebited,
		Currency:      source.Currency,
	})
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error publishing event: %s", err))
	}

	s.logger.Log(c, orderNumber, mylog.SeverityInfo, "Captured %d %s for order %s", source.AmountDebited, source.Currency, orderNumber)

	return nil
}

// retrievePaymentIntent fetches the live payment state belonging to a
// checkout.
func (s *service) retrievePaymentIntent(c context.Context, basketUID string) (stripe.PaymentIntent, error) {
	checkoutContext, found, err := s.checkoutStore.Get(c, basketUID)
	if err != nil {
		return stripe.PaymentIntent{}, myerrors.NewInternalError(fmt.Errorf("error fetching checkout with uid %s: %s", basketUID, err))
	}
	if !found {
		return stripe.PaymentIntent{}, myerrors.NewNotFoundError(fmt.Errorf("checkout with uid %s not found", basketUID))
	}
	if checkoutContext.PaymentIntentID == "" {
		return stripe.PaymentIntent{}, myerrors.NewNotFoundError(fmt.Errorf("checkout with uid %s has no payment intent", basketUID))
	}

	return s.payer.RetrievePaymentIntent(c, checkoutContext.PaymentIntentID)
}

func (s *service) webhookNotification(c context.Context, username, password string, event stripe.Event) error {

	// TODO verify the webhook signature instead of trusting basic auth

	basketUID := basketUIDFromEvent(event)
	if basketUID == "" {
		return myerrors.NewInvalidInputError(fmt.Errorf("event %s without basket reference", event.Type))
	}

	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Webhook: status update %s received on basket %s", event.Type, basketUID)

	now := s.nower.Now()
	success := isSuccessEvent(string(event.Type))

	return s.checkoutStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent

		checkoutContext, found, err := s.checkoutStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("checkout with uid %s not found", basketUID))
		}

		checkoutContext.LastModified = &now
		checkoutContext.WebhookEventName = string(event.Type)
		checkoutContext.WebhookEventSuccess = success
		if intentID := paymentIntentIDFromEvent(event); intentID != "" {
			checkoutContext.PaymentIntentID = intentID
		}

		err = s.checkoutStore.Put(c, basketUID, checkoutContext)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutCompleted{
			CheckoutUID: basketUID,
			EventName:   string(event.Type),
			Success:     success,
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error publishing event: %s", err))
		}

		return nil
	})
}

func isSuccessEvent(eventType string) bool {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "payment_intent.succeeded":
		return true
	}
	return false
}

func basketUIDFromEvent(event stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	if ref, ok := event.Data.Object["client_reference_id"].(string); ok && ref != "" {
		return ref
	}
	if metadata, ok := event.Data.Object["metadata"].(map[string]interface{}); ok {
		if uid, ok := metadata["basket_uid"].(string); ok {
			return uid
		}
	}
	return ""
}

func paymentIntentIDFromEvent(event stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	switch intent := event.Data.Object["payment_intent"].(type) {
	case string:
		return intent
	case map[string]interface{}:
		if id, ok := intent["id"].(string); ok {
			return id
		}
	}
	return ""
}

func paymentIntentID(session stripe.CheckoutSession) string {
	if session.PaymentIntent == nil {
		return ""
	}
	return session.PaymentIntent.ID
}

// FriendlyMessage translates a payment error into a message that can be shown
// to a shopper without leaking gateway details.
func FriendlyMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeCardDeclined {
		return FriendlyDeclineMessage
	}
	return FriendlyErrorMessage
}

func addStatusQueryParam(orgURL string, status string) (string, error) {
	u, err := url.Parse(orgURL)
	if err != nil {
		return "", myerrors.NewInternalError(fmt.Errorf("error parsing return URL %s: %s", orgURL, err))
	}
	params := u.Query()
	params.Set("status", status)
	u.RawQuery = params.Encode()
	return u.String(), nil
}
