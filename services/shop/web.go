package shop

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shopkit/stripecheckout/lib/mycontext"
	"github.com/shopkit/stripecheckout/lib/myhttp"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mypubsub"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/checkoutevents"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and easy testing
func NewWebService(store mystore.Store[basketapi.Basket], nower mytime.Nower, uuider myuuid.UUIDer,
	publisher mypublisher.Publisher, pubsub mypubsub.PubSub, hostname string) *webService {
	logger := mylog.New("basket")
	return &webService{
		logger:  logger,
		service: newService(store, nower, uuider, logger, publisher, pubsub, hostname),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/basket", s.basketListPage()).Methods("GET")
	router.HandleFunc("/basket", s.createNewBasketPage()).Methods("POST")
	router.HandleFunc("/basket/{basketUID}", s.basketDetailsPage()).Methods("GET")
	router.HandleFunc("/basket/{basketUID}/checkout/completed", s.checkoutCompletedRedirectCallback()).Methods("GET")

	router.HandleFunc("/basket/event", s.eventHandler()).Methods("POST")

	return s.service.Subscribe(c)
}

func (s *webService) basketListPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		baskets, err := s.service.listBaskets(c)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, basketListResponse{Baskets: baskets})
	}
}

func (s *webService) createNewBasketPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		basket, err := s.service.createNewBasket(c, myhttp.HostnameWithScheme(r))
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, basket)
	}
}

func (s *webService) basketDetailsPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		basketUID := mux.Vars(r)["basketUID"]

		basket, err := s.service.getBasket(c, basketUID)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, basket)
	}
}

func (s *webService) checkoutCompletedRedirectCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		basketUID := mux.Vars(r)["basketUID"]
		status := r.URL.Query().Get("status")

		basket, err := s.service.checkoutFinalized(c, basketUID, status)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, basket)
	}
}

func (s *webService) eventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		err := checkoutevents.DispatchEvent(c, r.Body, s.service)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{})
	}
}

type basketListResponse struct {
	Baskets []basketapi.Basket `json:"baskets"`
}
