package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

func TestValidateCreate_RejectsNonPositiveAmount(t *testing.T) {
	err := validateCreate(domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "o1", Currency: domain.CurrencyETH, Amount: decimal.Zero,
	})
	assert.True(t, xerr.Is(err, xerr.KindValidation))
}

func TestValidateCreate_RejectsExpiryOverSevenDays(t *testing.T) {
	err := validateCreate(domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "o1", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromInt(1), ExpiresIn: 8 * 24 * time.Hour,
	})
	assert.True(t, xerr.Is(err, xerr.KindValidation))
}

func TestValidateCreate_RejectsMalformedCallbackURL(t *testing.T) {
	err := validateCreate(domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "o1", Currency: domain.CurrencyETH,
		Amount: decimal.NewFromInt(1), CallbackURL: "not a url",
	})
	assert.True(t, xerr.Is(err, xerr.KindValidation))
}

func TestValidateCreate_AcceptsWellFormedRequest(t *testing.T) {
	err := validateCreate(domain.CreatePaymentRequest{
		MerchantID: 1, OrderID: "o1", Currency: domain.CurrencyUSDT,
		Amount: decimal.NewFromInt(10), CallbackURL: "https://merchant.example/cb",
	})
	assert.NoError(t, err)
}
