package checkoutstripe

import (
	"strings"

	"github.com/shopspring/decimal"
)

// https://support.stripe.com/questions/which-zero-decimal-currencies-does-stripe-support
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, // Burundian Franc
	"CLP": true, // Chilean Peso
	"DJF": true, // Djiboutian Franc
	"GNF": true, // Guinean Franc
	"JPY": true, // Japanese Yen
	"KMF": true, // Comorian Franc
	"KRW": true, // South Korean Won
	"MGA": true, // Malagasy Ariary
	"PYG": true, // Paraguayan Guaraní
	"RWF": true, // Rwandan Franc
	"VND": true, // Vietnamese Đồng
	"VUV": true, // Vanuatu Vatu
	"XAF": true, // Central African Cfa Franc
	"XOF": true, // West African Cfa Franc
	"XPF": true, // Cfp Franc
}

// amountInMinorUnits converts a decimal price to the integer minor-unit amount
// the gateway expects, rounding half-up. Zero-decimal currencies are charged
// in whole units.
func amountInMinorUnits(price decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return price.Round(0).IntPart()
	}

	return price.Round(2).Shift(2).IntPart()
}
