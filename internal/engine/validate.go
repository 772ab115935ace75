package engine

import (
	"net/url"
	"time"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

const maxExpiry = 7 * 24 * time.Hour

// validateCreate mirrors the original payment service's
// validate_create_request: reject empty identifiers, non-positive
// amounts, expiries past a week out, and malformed callback URLs.
func validateCreate(req domain.CreatePaymentRequest) error {
	if req.OrderID == "" {
		return xerr.Validation("order_id must not be empty")
	}
	if req.MerchantID == 0 {
		return xerr.Validation("merchant_id must not be empty")
	}
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return xerr.Validation("amount must be positive")
	}
	if req.Currency != domain.CurrencyETH && req.Currency != domain.CurrencyUSDT {
		return xerr.Validation("unsupported currency")
	}
	if req.ExpiresIn > maxExpiry {
		return xerr.Validation("expires_in must not exceed 7 days")
	}
	if req.CallbackURL != "" {
		if _, err := url.ParseRequestURI(req.CallbackURL); err != nil {
			return xerr.Validation("callback_url is not a valid URL")
		}
	}
	return nil
}
