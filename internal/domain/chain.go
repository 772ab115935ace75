package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxConfirmationStatus classifies a tracked transaction so callers can
// tell "not mined yet" apart from "mined but reverted" instead of
// collapsing both into a single boolean.
type TxConfirmationStatus int

const (
	// TxPending means no receipt exists yet: still in the mempool, or
	// dropped by a reorg and not (yet) re-included.
	TxPending TxConfirmationStatus = iota
	// TxSuccessful means the transaction has a receipt with a
	// successful status.
	TxSuccessful
	// TxFailed means the transaction has a receipt but its status is
	// not successful — it was mined but reverted.
	TxFailed
)

// ChainAdapter is the boundary between the engine and a specific chain
// client. The Ethereum implementation wraps ethclient.Client; tests wrap
// a fake that replays fixture blocks.
type ChainAdapter interface {
	BlockHeight(ctx context.Context) (int64, error)
	BlockByHeight(ctx context.Context, height int64) (*StandardBlock, error)
	Balance(ctx context.Context, address string, currency Currency) (decimal.Decimal, error)
	SendValue(ctx context.Context, privateKeyHex string, currency Currency, to string, amount decimal.Decimal) (txHash string, err error)
	TransactionConfirmations(ctx context.Context, txHash string, tipHeight int64) (confirmations int, status TxConfirmationStatus, err error)
	EstimateGasCost(ctx context.Context, currency Currency) (decimal.Decimal, error)
}
