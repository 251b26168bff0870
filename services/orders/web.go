package orders

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/shopkit/stripecheckout/lib/mycontext"
	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/myhttp"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mystore"
)

type webService struct {
	logger      mylog.Logger
	orderStore  mystore.Store[Order]
	sourceStore mystore.Store[PaymentSource]
}

// Use dependency injection to isolate the infrastructure and easy testing
func NewWebService(orderStore mystore.Store[Order], sourceStore mystore.Store[PaymentSource]) *webService {
	return &webService{
		logger:      mylog.New("orders"),
		orderStore:  orderStore,
		sourceStore: sourceStore,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/order", s.listOrdersPage()).Methods("GET")
	router.HandleFunc("/order/{orderNumber}", s.orderDetailsPage()).Methods("GET")
}

type orderDetails struct {
	Order  Order
	Source *PaymentSource
}

func (s *webService) listOrdersPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		orders, err := s.orderStore.List(c)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInternalError(err))
			return
		}

		sort.Slice(orders, func(i, j int) bool {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		})

		errorWriter.Write(c, w, http.StatusOK, orders)
	}
}

func (s *webService) orderDetailsPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(s.logger)

		orderNumber := mux.Vars(r)["orderNumber"]

		order, found, err := s.orderStore.Get(c, orderNumber)
		if err != nil {
			errorWriter.WriteError(c, w, 1, myerrors.NewInternalError(err))
			return
		}
		if !found {
			errorWriter.WriteError(c, w, 2, myerrors.NewNotFoundError(fmt.Errorf("order with number %s not found", orderNumber)))
			return
		}

		details := orderDetails{Order: order}
		source, found, err := s.sourceStore.Get(c, orderNumber)
		if err != nil {
			errorWriter.WriteError(c, w, 3, myerrors.NewInternalError(err))
			return
		}
		if found {
			details.Source = &source
		}

		errorWriter.Write(c, w, http.StatusOK, details)
	}
}
