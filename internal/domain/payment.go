package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the lifecycle state machine: pending moves to
// confirmed once a matching transfer is bound to the payment, confirmed
// moves to completed once that transfer reaches the required number of
// confirmations, and pending moves to expired once expires_at passes with
// no match. failed is reachable from confirmed when the bound transaction
// is mined with a failed status or dropped by a reorg.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyUSDT Currency = "USDT"
)

// ContractAddress returns the ERC-20 contract address for the currency,
// or "" for the native asset. Callers must treat "" as "native transfer".
func (c Currency) ContractAddress(usdtContract string) string {
	if c == CurrencyUSDT {
		return usdtContract
	}
	return ""
}

// Payment is a single request to receive funds on behalf of a merchant
// order. It owns exactly one PaymentAddress for its lifetime.
type Payment struct {
	ID               uint64 `gorm:"primaryKey"`
	MerchantID       uint64 `gorm:"index:idx_merchant_order,unique"`
	OrderID          string `gorm:"size:128;index:idx_merchant_order,unique"`
	Currency         Currency
	ExpectedAmount   decimal.Decimal `gorm:"type:decimal(36,18)"`
	ReceivingAddress string          `gorm:"size:42;index"`
	Status           PaymentStatus   `gorm:"size:16;index"`
	Confirmations    int
	TxHash           string `gorm:"size:66"`
	CallbackURL      string `gorm:"size:512"`
	ExpiresAt        time.Time
	Version          int64 `gorm:"default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Payment) TableName() string { return "payments" }

// CreatePaymentRequest is the validated input to CreatePayment.
type CreatePaymentRequest struct {
	MerchantID  uint64
	OrderID     string
	Currency    Currency
	Amount      decimal.Decimal
	CallbackURL string
	ExpiresIn   time.Duration
}
