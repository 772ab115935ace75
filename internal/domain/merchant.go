package domain

import "time"

// MerchantStatus gates webhook enqueueing: no new attempt is queued for
// an inactive or suspended merchant. Attempts queued while the merchant
// was active are still delivered; the dispatcher does not re-check status.
type MerchantStatus string

const (
	MerchantActive    MerchantStatus = "active"
	MerchantInactive  MerchantStatus = "inactive"
	MerchantSuspended MerchantStatus = "suspended"
)

// Merchant is an external collaborator: the engine only ever reads it
// (to look up a webhook URL and signing secret), never writes it.
type Merchant struct {
	ID         uint64 `gorm:"primaryKey"`
	Name       string `gorm:"size:256"`
	APIKey     string `gorm:"size:64;uniqueIndex"`
	APISecret  string `gorm:"size:64"`
	WebhookURL string `gorm:"size:512"`
	Status     MerchantStatus `gorm:"size:16"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Merchant) TableName() string { return "merchants" }
