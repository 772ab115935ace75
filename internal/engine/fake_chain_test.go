package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"wopay.dev/internal/domain"
)

// fakeChain is a domain.ChainAdapter double that replays canned
// confirmation counts and balances instead of talking to a real node.
type fakeChain struct {
	height            int64
	confirmationsByTx map[string]int
	statusByTx        map[string]domain.TxConfirmationStatus
	balanceByAddress  map[string]decimal.Decimal
	gasCost           decimal.Decimal
	sentTxHash        string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		confirmationsByTx: make(map[string]int),
		statusByTx:        make(map[string]domain.TxConfirmationStatus),
		balanceByAddress:  make(map[string]decimal.Decimal),
		gasCost:           decimal.NewFromFloat(0.001),
		sentTxHash:        "0xsent",
	}
}

func (f *fakeChain) BlockHeight(ctx context.Context) (int64, error) { return f.height, nil }

func (f *fakeChain) BlockByHeight(ctx context.Context, height int64) (*domain.StandardBlock, error) {
	return &domain.StandardBlock{Height: height}, nil
}

func (f *fakeChain) Balance(ctx context.Context, address string, currency domain.Currency) (decimal.Decimal, error) {
	return f.balanceByAddress[address], nil
}

func (f *fakeChain) SendValue(ctx context.Context, privateKeyHex string, currency domain.Currency, to string, amount decimal.Decimal) (string, error) {
	return f.sentTxHash, nil
}

func (f *fakeChain) TransactionConfirmations(ctx context.Context, txHash string, tipHeight int64) (int, domain.TxConfirmationStatus, error) {
	return f.confirmationsByTx[txHash], f.statusByTx[txHash], nil
}

func (f *fakeChain) EstimateGasCost(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	return f.gasCost, nil
}
