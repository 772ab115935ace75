// Package chain wraps a domain.ChainAdapter with a circuit breaker so a
// run of RPC failures trips the follower/sweeper into backoff instead of
// hammering a degraded node.
package chain

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// BreakerAdapter decorates a domain.ChainAdapter, classifying every
// returned error as transient (counts toward the breaker, safe to retry)
// or permanent (surfaces unchanged, never retried).
type BreakerAdapter struct {
	inner   domain.ChainAdapter
	breaker *gobreaker.CircuitBreaker[any]
}

func NewBreakerAdapter(inner domain.ChainAdapter, name string) *BreakerAdapter {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return !isTransient(err)
		},
	}
	return &BreakerAdapter{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (b *BreakerAdapter) BlockHeight(ctx context.Context) (int64, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		height, err := b.inner.BlockHeight(ctx)
		return height, classify(err)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerAdapter) BlockByHeight(ctx context.Context, height int64) (*domain.StandardBlock, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		block, err := b.inner.BlockByHeight(ctx, height)
		return block, classify(err)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.StandardBlock), nil
}

func (b *BreakerAdapter) Balance(ctx context.Context, address string, currency domain.Currency) (decimal.Decimal, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		balance, err := b.inner.Balance(ctx, address, currency)
		return balance, classify(err)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (b *BreakerAdapter) SendValue(ctx context.Context, privateKeyHex string, currency domain.Currency, to string, amount decimal.Decimal) (string, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		hash, err := b.inner.SendValue(ctx, privateKeyHex, currency, to, amount)
		return hash, classify(err)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *BreakerAdapter) TransactionConfirmations(ctx context.Context, txHash string, tipHeight int64) (int, domain.TxConfirmationStatus, error) {
	type result struct {
		confirmations int
		status        domain.TxConfirmationStatus
	}
	v, err := b.breaker.Execute(func() (any, error) {
		confirmations, status, err := b.inner.TransactionConfirmations(ctx, txHash, tipHeight)
		return result{confirmations, status}, classify(err)
	})
	if err != nil {
		return 0, domain.TxPending, err
	}
	r := v.(result)
	return r.confirmations, r.status, nil
}

func (b *BreakerAdapter) EstimateGasCost(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		cost, err := b.inner.EstimateGasCost(ctx, currency)
		return cost, classify(err)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// classify wraps a raw adapter error into the engine's transient/permanent
// taxonomy so callers can decide retry policy with errors.As instead of
// re-inspecting the underlying RPC error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return xerr.TransientChain(err)
	}
	return xerr.PermanentChain(err)
}

// isTransient reports whether err looks like a network/availability
// problem (worth retrying) rather than a data/logic problem (not worth
// retrying, and not counted against the breaker). An error it does not
// recognise as a network, context or JSON-RPC error counts as transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// JSON-RPC error codes below -32000 are protocol/application
		// errors (bad params, method not found) — never transient.
		return rpcErr.ErrorCode() >= -32000
	}
	return true
}
