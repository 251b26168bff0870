package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/shopkit/stripecheckout/services/checkoutstripe"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port     string
	Hostname string
	Stripe   checkoutstripe.Config
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	port := valueOrDefault(k.String("PORT"), "8080")
	hostname := valueOrDefault(k.String("HOSTNAME"), "http://localhost:"+port)

	cfg := &Config{
		Port:     port,
		Hostname: hostname,
		Stripe: checkoutstripe.Config{
			SecretKey:              k.String("STRIPE_SECRET_KEY"),
			PublishableKey:         k.String("STRIPE_PUBLISHABLE_KEY"),
			APIVersion:             k.String("STRIPE_API_VERSION"),
			SuccessURLTemplate:     valueOrDefault(k.String("STRIPE_SUCCESS_URL_TEMPLATE"), hostname+"/stripe/checkout/%s/status/success"),
			CancelURLTemplate:      valueOrDefault(k.String("STRIPE_CANCEL_URL_TEMPLATE"), hostname+"/stripe/checkout/%s/status/cancel"),
			CompressToOneLineItem:  parseBool(k.String("STRIPE_COMPRESS_TO_ONE_LINE_ITEM")),
			UsePricesAPI:           parseBool(k.String("STRIPE_USE_PRICES_API")),
			EnableTaxComputation:   parseBool(k.String("STRIPE_ENABLE_TAX_COMPUTATION")),
			DefaultProductTaxCode:  k.String("STRIPE_DEFAULT_PRODUCT_TAX_CODE"),
			DefaultShippingTaxCode: k.String("STRIPE_DEFAULT_SHIPPING_TAX_CODE"),
			PayerImplementation:    valueOrDefault(k.String("STRIPE_PAYER_IMPLEMENTATION"), "stripe"),
		},
	}

	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return parsed
}
