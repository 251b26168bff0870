package checkoutstripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v74"

	"github.com/shopkit/stripecheckout/lib/mycontext"
	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/myhttp"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/checkoutapi"
	"github.com/shopkit/stripecheckout/services/orders"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and easy testing
func NewWebService(cfg Config, payer Payer, nower mytime.Nower, uuider myuuid.UUIDer,
	basketStore mystore.Store[basketapi.Basket], checkoutStore mystore.Store[checkoutapi.CheckoutContext],
	orderStore mystore.Store[orders.Order], sourceStore mystore.Store[orders.PaymentSource],
	publisher mypublisher.Publisher) (*webService, error) {

	logger := mylog.New("checkoutstripe")
	s, err := newService(cfg, payer, logger, nower, uuider, basketStore, checkoutStore, orderStore, sourceStore, publisher)
	if err != nil {
		return nil, err
	}

	return &webService{
		logger:  logger,
		service: s,
	}, nil
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/stripe/checkout/{basketUID}", s.startCheckoutPage()).Methods("POST")
	router.HandleFunc("/stripe/checkout/{basketUID}/status/success", s.checkoutSuccessPage()).Methods("GET")
	router.HandleFunc("/stripe/checkout/{basketUID}/status/cancel", s.checkoutCancelPage()).Methods("GET")
	router.HandleFunc("/stripe/checkout/{basketUID}/payment", s.paymentStatusPage()).Methods("GET")

	router.HandleFunc("/stripe/checkout/order/{orderNumber}/capture", s.captureOrderPage()).Methods("POST")

	router.HandleFunc("/stripe/checkout/webhook/event", s.webhookNotification()).Methods("POST")

	return s.service.CreateTopics(c)
}

// startCheckoutPage starts a hosted checkout session on the payment platform
func (s *webService) startCheckoutPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		req, err := parseRequest(r)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}

		redirectURL, err := s.service.startCheckout(c, req)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
	}
}

func (s *webService) checkoutSuccessPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		basketUID := mux.Vars(r)["basketUID"]

		redirectURL, err := s.service.finalizeSuccess(c, basketUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
	}
}

func (s *webService) checkoutCancelPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		basketUID := mux.Vars(r)["basketUID"]

		redirectURL, err := s.service.finalizeCancel(c, basketUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		http.Redirect(w, r, redirectURL, http.StatusSeeOther)
	}
}

func (s *webService) paymentStatusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		basketUID := mux.Vars(r)["basketUID"]

		intent, err := s.service.retrievePaymentIntent(c, basketUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, paymentStatusResponse{
			PaymentIntentID: intent.ID,
			Status:          string(intent.Status),
			Amount:          intent.Amount,
			Currency:        string(intent.Currency),
		})
	}
}

func (s *webService) captureOrderPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		orderNumber := mux.Vars(r)["orderNumber"]

		err := s.service.captureOrder(c, orderNumber)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{})
	}
}

func (s *webService) webhookNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		username, password, _ := r.BasicAuth()

		event := stripe.Event{}
		err := json.NewDecoder(r.Body).Decode(&event)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(err))
			return
		}

		err = s.service.webhookNotification(c, username, password, event)
		if err != nil {
			errorWriter.WriteError(c, w, 2, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{})
	}
}

type paymentStatusResponse struct {
	PaymentIntentID string `json:"paymentIntentID"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func parseRequest(r *http.Request) (checkoutapi.CheckoutRequest, error) {
	req, err := checkoutapi.NewFromRequest(r)
	if err != nil {
		return checkoutapi.CheckoutRequest{}, err
	}

	req.BasketUID = mux.Vars(r)["basketUID"]
	if req.BasketUID == "" {
		return checkoutapi.CheckoutRequest{}, myerrors.NewInvalidInputError(fmt.Errorf("missing basketUID"))
	}

	return req, nil
}
