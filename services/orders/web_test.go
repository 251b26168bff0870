package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
)

func TestOrderService(t *testing.T) {

	t.Run("List orders", func(t *testing.T) {
		// setup
		ctx, router, orderStore, _ := setup(t)

		// given
		_ = orderStore.Put(ctx, "ord-1", Order{Number: "ord-1", BasketUID: "123", Currency: "EUR", TotalInclTax: "25", CreatedAt: mytime.ExampleTime})
		_ = orderStore.Put(ctx, "ord-2", Order{Number: "ord-2", BasketUID: "456", Currency: "EUR", TotalInclTax: "60", CreatedAt: mytime.ExampleTime})

		// when
		request, err := http.NewRequest(http.MethodGet, "/order", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, "ord-1")
		assert.Contains(t, got, "ord-2")
	})

	t.Run("Get order with payment source", func(t *testing.T) {
		// setup
		ctx, router, orderStore, sourceStore := setup(t)

		// given
		_ = orderStore.Put(ctx, "ord-1", Order{Number: "ord-1", BasketUID: "123", Currency: "EUR", TotalInclTax: "25", CreatedAt: mytime.ExampleTime})
		_ = sourceStore.Put(ctx, "ord-1", PaymentSource{OrderNumber: "ord-1", Reference: "pi_789", Currency: "EUR", AmountAllocated: 2500})

		// when
		request, err := http.NewRequest(http.MethodGet, "/order/ord-1", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, "ord-1")
		assert.Contains(t, got, "pi_789")
	})

	t.Run("Get order not exists", func(t *testing.T) {
		// setup
		_, router, _, _ := setup(t)

		// when
		request, err := http.NewRequest(http.MethodGet, "/order/999", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 404, response.Code)
	})
}

func setup(t *testing.T) (context.Context, *mux.Router, mystore.Store[Order], mystore.Store[PaymentSource]) {
	c := context.TODO()
	orderStore, _, _ := mystore.New[Order](c)
	sourceStore, _, _ := mystore.New[PaymentSource](c)

	sut := NewWebService(orderStore, sourceStore)
	router := mux.NewRouter()
	sut.RegisterEndpoints(c, router)

	return c, router, orderStore, sourceStore
}
