package checkoutstripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/mock/gomock"

	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/checkoutapi"
	"github.com/shopkit/stripecheckout/services/checkoutevents"
	"github.com/shopkit/stripecheckout/services/orders"
)

var sessionResp = stripe.CheckoutSession{
	ID:          "cs_456",
	AmountTotal: int64(2500),
	Currency:    "usd",
	URL:         "http://hosted.payment.page/session/cs_456",
	PaymentIntent: &stripe.PaymentIntent{
		ID: "pi_789",
	},
}

func openBasket() basketapi.Basket {
	return basketapi.Basket{
		UID:          "123",
		CreatedAt:    mytime.ExampleTime.Add(-1 * time.Hour),
		State:        basketapi.BasketStateOpen,
		Currency:     "USD",
		ShopperEmail: "my@email.com",
		ReturnURL:    "http://localhost:8080/basket/123/checkout",
		Lines: []basketapi.Line{
			{ProductName: "A", Quantity: 2, UnitPrice: "10.00", Currency: "USD"},
			{ProductName: "B", Quantity: 1, UnitPrice: "5.00", Currency: "USD"},
		},
	}
}

func TestCheckoutService(t *testing.T) {

	t.Run("Start checkout freezes basket and redirects to hosted page", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		_ = f.basketStore.Put(f.ctx, "123", openBasket())
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)
		f.payer.EXPECT().CreateCheckoutSession(gomock.Any(), gomock.Any()).Return(sessionResp, nil)
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.CheckoutStarted{
			CheckoutUID:   "123",
			AmountInCents: 2500,
			Currency:      "usd",
			ShopperEmail:  "my@email.com",
		}).Return(nil)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/123", strings.NewReader(`returnUrl=http://a.b/c&shopper.email=my@email.com&shopper.locale=nl-nl`))
		assert.NoError(t, err)
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		request.Host = "localhost:8888"
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 303, response.Code)
		assert.Equal(t, "http://hosted.payment.page/session/cs_456", response.Header().Get("Location"))

		basket, exists, _ := f.basketStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, basketapi.BasketStateFrozen, basket.State)

		checkout, exists, _ := f.checkoutStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, "cs_456", checkout.SessionID)
		assert.Equal(t, "pi_789", checkout.PaymentIntentID)
		assert.Equal(t, "http://a.b/c", checkout.OriginalReturnURL)
	})

	t.Run("Start checkout with unknown basket", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/999", strings.NewReader(`returnUrl=http://a.b/c`))
		assert.NoError(t, err)
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 404, response.Code)
	})

	t.Run("Start checkout re-opens basket when session creation fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		_ = f.basketStore.Put(f.ctx, "123", openBasket())
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)
		f.payer.EXPECT().CreateCheckoutSession(gomock.Any(), gomock.Any()).
			Return(stripe.CheckoutSession{}, &stripe.Error{Code: stripe.ErrorCodeCardDeclined})

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/123", strings.NewReader(`returnUrl=http://a.b/c`))
		assert.NoError(t, err)
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 500, response.Code)

		basket, exists, _ := f.basketStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, basketapi.BasketStateOpen, basket.State)
	})

	t.Run("Success redirect places order and captures payment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		basket := openBasket()
		_ = basket.Freeze()
		_ = f.basketStore.Put(f.ctx, "123", basket)
		_ = f.checkoutStore.Put(f.ctx, "123", checkoutapi.CheckoutContext{
			BasketUID:         "123",
			CreatedAt:         mytime.ExampleTime.Add(-1 * time.Hour),
			OriginalReturnURL: "http://localhost:8080/basket/123/checkout",
			SessionID:         "cs_456",
			PaymentIntentID:   "pi_789",
			ShopperEmail:      "my@email.com",
		})

		f.nower.EXPECT().Now().Return(mytime.ExampleTime).Times(2)
		f.uuider.EXPECT().Create().Return("ord-1")
		f.payer.EXPECT().AttachReceiptEmail(gomock.Any(), "pi_789", "my@email.com").Return(nil)
		f.payer.EXPECT().CapturePaymentIntent(gomock.Any(), "pi_789").Return(stripe.PaymentIntent{
			ID:             "pi_789",
			AmountReceived: 2500,
		}, nil)
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.PaymentCaptured{
			CheckoutUID:   "123",
			OrderNumber:   "ord-1",
			Reference:     "pi_789",
			AmountInCents: 2500,
			Currency:      "USD",
		}).Return(nil)

		// when
		request, err := http.NewRequest(http.MethodGet, "/stripe/checkout/123/status/success", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 303, response.Code)
		assert.Equal(t, "http://localhost:8080/basket/123/checkout?status=success", response.Header().Get("Location"))

		basket, exists, _ := f.basketStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, basketapi.BasketStateSubmitted, basket.State)
		assert.Equal(t, "ord-1", basket.OrderNumber)

		order, exists, _ := f.orderStore.Get(f.ctx, "ord-1")
		assert.True(t, exists)
		assert.Equal(t, "123", order.BasketUID)
		assert.Equal(t, "25", order.TotalInclTax)

		source, exists, _ := f.sourceStore.Get(f.ctx, "ord-1")
		assert.True(t, exists)
		assert.Equal(t, "pi_789", source.Reference)
		assert.Equal(t, int64(2500), source.AmountAllocated)
		assert.Equal(t, int64(2500), source.AmountDebited)
		assert.True(t, source.IsCaptured())
	})

	t.Run("Refresh of success redirect does not capture again", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given: a basket that already went through the success redirect once
		captureTime := mytime.ExampleTime
		basket := openBasket()
		_ = basket.Freeze()
		_ = basket.Submit()
		basket.OrderNumber = "ord-1"
		basket.PaymentStatus = "authorized"
		_ = f.basketStore.Put(f.ctx, "123", basket)
		_ = f.checkoutStore.Put(f.ctx, "123", checkoutapi.CheckoutContext{
			BasketUID:         "123",
			CreatedAt:         mytime.ExampleTime.Add(-1 * time.Hour),
			OriginalReturnURL: "http://localhost:8080/basket/123/checkout",
			SessionID:         "cs_456",
			PaymentIntentID:   "pi_789",
			ShopperEmail:      "my@email.com",
			Status:            "success",
		})
		_ = f.orderStore.Put(f.ctx, "ord-1", orders.Order{
			Number:       "ord-1",
			BasketUID:    "123",
			ShopperEmail: "my@email.com",
			Currency:     "USD",
			TotalInclTax: "25",
			CreatedAt:    mytime.ExampleTime,
		})
		_ = f.sourceStore.Put(f.ctx, "ord-1", orders.PaymentSource{
			OrderNumber:     "ord-1",
			Reference:       "pi_789",
			Currency:        "USD",
			AmountAllocated: 2500,
			AmountDebited:   2500,
			DateCaptured:    &captureTime,
		})
		f.nower.EXPECT().Now().Return(mytime.ExampleTime.Add(time.Hour)).Times(2)

		// when
		request, err := http.NewRequest(http.MethodGet, "/stripe/checkout/123/status/success", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then: redirected again, no second order and no second remote capture
		assert.Equal(t, 303, response.Code)
		assert.Equal(t, "http://localhost:8080/basket/123/checkout?status=success", response.Header().Get("Location"))

		source, exists, _ := f.sourceStore.Get(f.ctx, "ord-1")
		assert.True(t, exists)
		assert.Equal(t, captureTime, *source.DateCaptured)
		assert.Equal(t, int64(2500), source.AmountDebited)
	})

	t.Run("Start checkout leaves basket open when line items cannot be built", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given: a basket line with an unusable price
		basket := openBasket()
		basket.Lines[0].UnitPrice = "ten"
		_ = f.basketStore.Put(f.ctx, "123", basket)
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/123", strings.NewReader(`returnUrl=http://a.b/c`))
		assert.NoError(t, err)
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then: rejected before the basket was frozen or Stripe was called
		assert.Equal(t, 400, response.Code)

		basket, exists, _ := f.basketStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, basketapi.BasketStateOpen, basket.State)
	})

	t.Run("Cancel redirect re-opens basket", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		basket := openBasket()
		_ = basket.Freeze()
		_ = f.basketStore.Put(f.ctx, "123", basket)
		_ = f.checkoutStore.Put(f.ctx, "123", checkoutapi.CheckoutContext{
			BasketUID:         "123",
			OriginalReturnURL: "http://localhost:8080/basket/123/checkout",
			SessionID:         "cs_456",
		})
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		request, err := http.NewRequest(http.MethodGet, "/stripe/checkout/123/status/cancel", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 303, response.Code)
		assert.Equal(t, "http://localhost:8080/basket/123/checkout?status=cancel", response.Header().Get("Location"))

		basket, exists, _ := f.basketStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, basketapi.BasketStateOpen, basket.State)

		checkout, exists, _ := f.checkoutStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, "cancel", checkout.Status)
	})

	t.Run("Capture of unknown order fails without remote calls", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/order/999/capture", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 404, response.Code)
	})

	t.Run("Explicit capture of existing order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		_ = f.orderStore.Put(f.ctx, "ord-1", orders.Order{
			Number:       "ord-1",
			BasketUID:    "123",
			ShopperEmail: "my@email.com",
			Currency:     "USD",
			TotalInclTax: "25",
			CreatedAt:    mytime.ExampleTime,
		})
		_ = f.sourceStore.Put(f.ctx, "ord-1", orders.PaymentSource{
			OrderNumber:     "ord-1",
			Reference:       "pi_789",
			Currency:        "USD",
			AmountAllocated: 2500,
		})
		f.nower.EXPECT().Now().Return(mytime.ExampleTime)
		f.payer.EXPECT().AttachReceiptEmail(gomock.Any(), "pi_789", "my@email.com").Return(nil)
		f.payer.EXPECT().CapturePaymentIntent(gomock.Any(), "pi_789").Return(stripe.PaymentIntent{
			ID:             "pi_789",
			AmountReceived: 2500,
		}, nil)
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.PaymentCaptured{
			CheckoutUID:   "123",
			OrderNumber:   "ord-1",
			Reference:     "pi_789",
			AmountInCents: 2500,
			Currency:      "USD",
		}).Return(nil)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/order/ord-1/capture", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)

		source, exists, _ := f.sourceStore.Get(f.ctx, "ord-1")
		assert.True(t, exists)
		assert.NotNil(t, source.DateCaptured)
		assert.Equal(t, int64(2500), source.AmountDebited)
	})

	t.Run("Handle checkout status webhook", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		_ = f.checkoutStore.Put(f.ctx, "123", checkoutapi.CheckoutContext{
			BasketUID:         "123",
			CreatedAt:         mytime.ExampleTime.Add(-1 * time.Hour),
			OriginalReturnURL: "http://localhost:8080/basket/123/checkout",
			SessionID:         "cs_456",
		})
		f.nower.EXPECT().Now().Return(mytime.ExampleTime.Add(time.Hour))
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.CheckoutCompleted{
			CheckoutUID: "123",
			EventName:   "payment_intent.succeeded",
			Success:     true,
		}).Return(nil)

		// when
		request, err := http.NewRequest(http.MethodPost, "/stripe/checkout/webhook/event", strings.NewReader(`{
			"id": "evt_2Zj5zzFU3a9abcZ1aYYYaaZ1",
			"object": "event",
			"api_version": "2022-11-15",
			"created": 1633887337,
			"type": "payment_intent.succeeded",
			"data": {
				"object": {
					"metadata": {
						"basket_uid": "123"
					},
					"payment_intent": "pi_789"
				}
			}
		}`))
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)

		checkout, exists, _ := f.checkoutStore.Get(f.ctx, "123")
		assert.True(t, exists)
		assert.Equal(t, "payment_intent.succeeded", checkout.WebhookEventName)
		assert.True(t, checkout.WebhookEventSuccess)
		assert.Equal(t, "pi_789", checkout.PaymentIntentID)
	})

	t.Run("Fetch payment status", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		_ = f.checkoutStore.Put(f.ctx, "123", checkoutapi.CheckoutContext{
			BasketUID:       "123",
			PaymentIntentID: "pi_789",
		})
		f.payer.EXPECT().RetrievePaymentIntent(gomock.Any(), "pi_789").Return(stripe.PaymentIntent{
			ID:       "pi_789",
			Status:   stripe.PaymentIntentStatusRequiresCapture,
			Amount:   2500,
			Currency: "usd",
		}, nil)

		// when
		request, err := http.NewRequest(http.MethodGet, "/stripe/checkout/123/payment", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		assert.Contains(t, response.Body.String(), "requires_capture")
	})
}

type fixture struct {
	ctx           context.Context
	router        *mux.Router
	basketStore   mystore.Store[basketapi.Basket]
	checkoutStore mystore.Store[checkoutapi.CheckoutContext]
	orderStore    mystore.Store[orders.Order]
	sourceStore   mystore.Store[orders.PaymentSource]
	payer         *MockPayer
	nower         *mytime.MockNower
	uuider        *myuuid.MockUUIDer
	publisher     *mypublisher.MockPublisher
}

func setup(t *testing.T, ctrl *gomock.Controller) fixture {
	c := context.TODO()
	basketStore, _, _ := mystore.New[basketapi.Basket](c)
	checkoutStore, _, _ := mystore.New[checkoutapi.CheckoutContext](c)
	orderStore, _, _ := mystore.New[orders.Order](c)
	sourceStore, _, _ := mystore.New[orders.PaymentSource](c)
	payer := NewMockPayer(ctrl)
	nower := mytime.NewMockNower(ctrl)
	uuider := myuuid.NewMockUUIDer(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)

	cfg := Config{
		SecretKey:          "my_api_key",
		SuccessURLTemplate: "http://localhost:8888/stripe/checkout/%s/status/success",
		CancelURLTemplate:  "http://localhost:8888/stripe/checkout/%s/status/cancel",
	}

	// Called by the following call to NewWebService
	payer.EXPECT().UseAPIKey("my_api_key")

	sut, err := NewWebService(cfg, payer, nower, uuider, basketStore, checkoutStore, orderStore, sourceStore, publisher)
	assert.NoError(t, err)
	router := mux.NewRouter()

	// Called by the following call to RegisterEndpoints
	publisher.EXPECT().CreateTopic(gomock.Any(), checkoutevents.TopicName).Return(nil)

	err = sut.RegisterEndpoints(c, router)
	assert.NoError(t, err)

	return fixture{
		ctx:           c,
		router:        router,
		basketStore:   basketStore,
		checkoutStore: checkoutStore,
		orderStore:    orderStore,
		sourceStore:   sourceStore,
		payer:         payer,
		nower:         nower,
		uuider:        uuider,
		publisher:     publisher,
	}
}
