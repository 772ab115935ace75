package domain

import "time"

// PaymentAddress is one leaf of the HD wallet tree, allocated 1:1 to a
// Payment. EncryptedPrivateKey is AES-GCM ciphertext; plaintext only ever
// exists on the stack during allocation and during sweep signing.
type PaymentAddress struct {
	ID                   uint64 `gorm:"primaryKey"`
	PaymentID            uint64 `gorm:"uniqueIndex"`
	Address              string `gorm:"size:42;uniqueIndex"`
	DerivationIndex      uint32 `gorm:"uniqueIndex"`
	EncryptedPrivateKey  []byte
	SweepRequested       bool `gorm:"index"`
	SweepConfirmed       bool
	CreatedAt            time.Time
}

func (PaymentAddress) TableName() string { return "payment_addresses" }
