package shop

import (
	"math/rand"
	"time"

	"github.com/shopkit/stripecheckout/services/basketapi"
)

var r *rand.Rand

func init() {
	r = rand.New(rand.NewSource(time.Now().Unix()))
}

func createBasket(uid string, createdAt time.Time, returnURL string) basketapi.Basket {
	basket := basketapi.Basket{
		UID:              uid,
		CreatedAt:        createdAt,
		State:            basketapi.BasketStateOpen,
		Currency:         "EUR",
		ShopperEmail:     "eva@example.com",
		Lines:            []basketapi.Line{},
		ShippingRequired: true,
		ReturnURL:        returnURL,
	}
	basket.Lines = append(basket.Lines, getRandomProduct())
	basket.Lines = append(basket.Lines, getRandomProduct())

	return basket
}

func getRandomProduct() basketapi.Line {
	return products[r.Intn(len(products))]
}

var products = []basketapi.Line{
	{
		ProductName: "Hockey stick",
		UnitPrice:   "190.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Hockey shoes",
		UnitPrice:   "120.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Jogging pants",
		UnitPrice:   "60.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Sweat shirt",
		UnitPrice:   "70.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Hoody",
		UnitPrice:   "80.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Tennis racket",
		UnitPrice:   "169.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Tennis balls",
		UnitPrice:   "10.00",
		Currency:    "EUR",
		Quantity:    6,
	},
	{
		ProductName: "Tennis shoes",
		UnitPrice:   "120.00",
		Currency:    "EUR",
		Quantity:    1,
	},
	{
		ProductName: "Running shoes",
		UnitPrice:   "120.00",
		Currency:    "EUR",
		Quantity:    1,
	},
}
