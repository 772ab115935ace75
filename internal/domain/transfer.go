package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObservedTransfer is a chain-level fact: either a native value transfer
// or an ERC-20 Transfer log of the configured token landed in a block. The
// recipient is not filtered, so transfers to addresses the engine never
// issued are recorded too. It is recorded independently of whether it ends
// up matched to a Payment,
// so a reorg can be undone by deleting rows instead of re-deriving state.
type ObservedTransfer struct {
	ID          uint64 `gorm:"primaryKey"`
	TxHash      string `gorm:"size:66;index:idx_tx_log,unique"`
	LogIndex    int    `gorm:"index:idx_tx_log,unique"`
	Currency    Currency
	ToAddress   string `gorm:"size:42;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(36,18)"`
	GasFee      decimal.Decimal `gorm:"type:decimal(36,18)"`
	BlockHeight int64           `gorm:"index"`
	BlockHash   string          `gorm:"size:66"`
	MatchedID   uint64          `gorm:"index"` // Payment.ID, 0 if unmatched
	CreatedAt   time.Time
}

func (ObservedTransfer) TableName() string { return "observed_transfers" }

// StandardBlock is the chain-agnostic shape a ChainAdapter hands to the
// Block Follower: enough to detect a reorg, plus every transfer in the
// block, without the follower knowing RPC details.
type StandardBlock struct {
	Height    int64
	Hash      string
	PrevHash  string
	Time      int64
	Transfers []ObservedTransfer
}

// ScanCursor tracks per-chain follower progress so a restart resumes from
// the last persisted block instead of re-scanning from genesis.
type ScanCursor struct {
	Chain       string `gorm:"primaryKey;size:32"`
	Height      int64
	Hash        string `gorm:"size:66"`
	UpdatedAt   time.Time
}

func (ScanCursor) TableName() string { return "scan_cursors" }
