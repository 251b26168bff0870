package basketapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceBreakdown(t *testing.T) {
	t.Run("Plain line yields single pair", func(t *testing.T) {
		line := Line{ProductName: "A", Quantity: 2, UnitPrice: "10.00", Currency: "USD"}

		breakdown, err := line.PriceBreakdown()
		assert.NoError(t, err)
		assert.Len(t, breakdown, 1)
		assert.Equal(t, "10", breakdown[0].UnitPriceInclTax.String())
		assert.Equal(t, int64(2), breakdown[0].Quantity)
	})

	t.Run("Tranches yield one pair each", func(t *testing.T) {
		line := Line{
			ProductName: "A",
			Quantity:    3,
			UnitPrice:   "10.00",
			Currency:    "USD",
			Tranches: []Tranche{
				{UnitPrice: "8.00", DiscountLabel: "3-for-2", Quantity: 2},
				{UnitPrice: "10.00", Quantity: 1},
			},
		}

		breakdown, err := line.PriceBreakdown()
		assert.NoError(t, err)
		assert.Len(t, breakdown, 2)
		assert.Equal(t, "8", breakdown[0].UnitPriceInclTax.String())
		assert.Equal(t, "3-for-2", breakdown[0].DiscountLabel)
		assert.Equal(t, int64(1), breakdown[1].Quantity)
	})

	t.Run("Malformed price is an error", func(t *testing.T) {
		line := Line{ProductName: "A", Quantity: 1, UnitPrice: "ten euro"}

		_, err := line.PriceBreakdown()
		assert.Error(t, err)
	})
}

func TestBasketTotal(t *testing.T) {
	basket := Basket{
		Currency: "USD",
		Lines: []Line{
			{ProductName: "A", Quantity: 2, UnitPrice: "10.00", Currency: "USD"},
			{ProductName: "B", Quantity: 1, UnitPrice: "5.50", Currency: "USD"},
		},
	}

	total, err := basket.Total()
	assert.NoError(t, err)
	assert.Equal(t, "25.5", total.InclTax.String())
	assert.Equal(t, "USD", total.Currency)
}

func TestBasketStateMachine(t *testing.T) {
	t.Run("Open basket freezes", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateOpen}
		assert.NoError(t, b.Freeze())
		assert.Equal(t, BasketStateFrozen, b.State)
	})

	t.Run("Frozen basket cannot freeze again", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateFrozen}
		assert.Error(t, b.Freeze())
	})

	t.Run("Frozen basket thaws back to open", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateFrozen}
		assert.NoError(t, b.Thaw())
		assert.Equal(t, BasketStateOpen, b.State)
	})

	t.Run("Open basket cannot thaw", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateOpen}
		assert.Error(t, b.Thaw())
	})

	t.Run("Frozen basket submits", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateFrozen}
		assert.NoError(t, b.Submit())
		assert.Equal(t, BasketStateSubmitted, b.State)
	})

	t.Run("Submitted basket is terminal", func(t *testing.T) {
		b := Basket{UID: "123", State: BasketStateSubmitted}
		assert.Error(t, b.Freeze())
		assert.Error(t, b.Thaw())
		assert.Error(t, b.Submit())
	})
}
