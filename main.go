package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shopkit/stripecheckout/config"
	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mypubsub"
	"github.com/shopkit/stripecheckout/lib/myqueue"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/checkoutapi"
	"github.com/shopkit/stripecheckout/services/checkoutstripe"
	"github.com/shopkit/stripecheckout/services/orders"
	"github.com/shopkit/stripecheckout/services/shop"
)

func main() {
	c := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err)
	}

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}

	basketStore, basketStoreCleanup, err := mystore.New[basketapi.Basket](c)
	if err != nil {
		log.Fatalf("Error creating basket store: %s", err)
	}
	defer basketStoreCleanup()

	checkoutStore, checkoutStoreCleanup, err := mystore.New[checkoutapi.CheckoutContext](c)
	if err != nil {
		log.Fatalf("Error creating checkout store: %s", err)
	}
	defer checkoutStoreCleanup()

	orderStore, orderStoreCleanup, err := mystore.New[orders.Order](c)
	if err != nil {
		log.Fatalf("Error creating order store: %s", err)
	}
	defer orderStoreCleanup()

	sourceStore, sourceStoreCleanup, err := mystore.New[orders.PaymentSource](c)
	if err != nil {
		log.Fatalf("Error creating payment source store: %s", err)
	}
	defer sourceStoreCleanup()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating task queue: %s", err)
	}
	defer queueCleanup()

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	publisher, publisherCleanup, err := mypublisher.New(c, pubsub, queue, nower)
	if err != nil {
		log.Fatalf("Error creating publisher: %s", err)
	}
	defer publisherCleanup()

	router := mux.NewRouter()
	publisher.RegisterEndpoints(c, router)

	payer, err := checkoutstripe.NewPayerByName(cfg.Stripe.PayerImplementation)
	if err != nil {
		log.Fatalf("Error creating payer: %s", err)
	}

	checkoutService, err := checkoutstripe.NewWebService(cfg.Stripe, payer, nower, uuider,
		basketStore, checkoutStore, orderStore, sourceStore, publisher)
	if err != nil {
		log.Fatalf("Error creating checkout service: %s", err)
	}
	err = checkoutService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering checkout service: %s", err)
	}

	basketService := shop.NewWebService(basketStore, nower, uuider, publisher, pubsub, cfg.Hostname)
	err = basketService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering basket service: %s", err)
	}

	orderService := orders.NewWebService(orderStore, sourceStore)
	orderService.RegisterEndpoints(c, router)

	startWebServerBlocking(cfg.HTTPAddr(), router)
}

func startWebServerBlocking(addr string, router *mux.Router) {
	log.Printf("Starting webserver on %s (try http://localhost%s)", addr, addr)
	err := http.ListenAndServe(addr, router)
	if err != nil {
		log.Fatalf("Error starting webserver on %s: %s", addr, err)
	}
}
