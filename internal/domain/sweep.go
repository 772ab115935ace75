package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SweepTransaction records one consolidation transfer from a payment
// address to the wallet's master address (WalletConfig.MasterAddress).
type SweepTransaction struct {
	ID        uint64 `gorm:"primaryKey"`
	AddressID uint64 `gorm:"index"`
	Currency  Currency
	Amount    decimal.Decimal `gorm:"type:decimal(36,18)"`
	GasCost   decimal.Decimal `gorm:"type:decimal(36,18)"`
	TxHash    string          `gorm:"size:66"`
	Status    string          `gorm:"size:16"` // broadcast|confirmed|failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SweepTransaction) TableName() string { return "sweep_transactions" }

// WalletConfig is the single-row table operators tune to control the
// Sweeper without a redeploy.
type WalletConfig struct {
	ID                         uint64 `gorm:"primaryKey"`
	AutoCollectionEnabled      bool
	CollectionThreshold        decimal.Decimal `gorm:"type:decimal(36,18)"`
	CollectionIntervalMinutes  int
	MasterAddress              string `gorm:"size:42"`
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

func (WalletConfig) TableName() string { return "wallet_configs" }

// CollectionStat is a daily counter of broadcast sweeps, ported from the
// original collection service's per-day rollup table.
type CollectionStat struct {
	Date             time.Time `gorm:"primaryKey"`
	TransactionCount int
}

func (CollectionStat) TableName() string { return "collection_stats" }
