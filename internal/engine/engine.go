// Package engine wires together the Address Allocator, Block Follower,
// Matcher & Confirmation Tracker, Webhook Dispatcher, and Sweeper into
// one running process, following the producer/consumer task layout the
// block scanner this module is built on uses.
package engine

import (
	"context"

	"go.uber.org/zap"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/internal/walletkey"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/safe"
	"wopay.dev/pkg/xredis"
)

const chainName = "ethereum"

// Engine holds every piece of global state the component tasks share:
// the HD wallet and its encryption key, the chain adapter, the store,
// and resolved configuration. There are no other package-level mutable
// globals.
type Engine struct {
	cfg    *config.Config
	store  domain.Store
	chain  domain.ChainAdapter
	wallet *walletkey.HDWallet
	encKey [32]byte

	follower   *BlockFollower
	matcher    *Matcher
	dispatcher *WebhookDispatcher
	sweeper    *Sweeper
}

// New wires the engine's tasks together. lock may be nil to run in
// single-instance mode without a distributed lock.
func New(cfg *config.Config, store domain.Store, chainAdapter domain.ChainAdapter, wallet *walletkey.HDWallet, encKey [32]byte, lock *xredis.RedisLockMaster) *Engine {
	e := &Engine{
		cfg:    cfg,
		store:  store,
		chain:  chainAdapter,
		wallet: wallet,
		encKey: encKey,
	}
	e.follower = NewBlockFollower(cfg, store, chainAdapter, lock)
	e.matcher = NewMatcher(cfg, store, chainAdapter)
	e.dispatcher = NewWebhookDispatcher(cfg, store)
	e.sweeper = NewSweeper(cfg, store, chainAdapter, encKey, lock)
	return e
}

// Allocate is the Address Allocator (C1): it derives the next HD address
// inside the same transaction CreatePayment uses, so a crash between
// derivation and persistence never leaves an orphaned on-chain address
// with no corresponding payment.
func (e *Engine) Allocate(ctx context.Context) (*domain.PaymentAddress, string, error) {
	index, err := e.store.NextDerivationIndex(ctx)
	if err != nil {
		return nil, "", err
	}
	derived, err := e.wallet.Derive(index)
	if err != nil {
		return nil, "", err
	}
	ciphertext, err := walletkey.Seal(e.encKey, derived.PrivateKeyHex)
	if err != nil {
		return nil, "", err
	}
	addr := &domain.PaymentAddress{
		Address:             derived.Address,
		DerivationIndex:     index,
		EncryptedPrivateKey: ciphertext,
	}
	return addr, derived.PrivateKeyHex, nil
}

// CreatePayment validates the request, then allocates a receiving
// address and persists it inside one store transaction, so
// NextDerivationIndex's row lock is held for the insert rather than
// released beforehand — otherwise two concurrent calls can both derive
// the same index and fight over the address table's unique constraint
// instead of being serialized by the lock.
func (e *Engine) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.Payment, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	var payment *domain.Payment
	err := e.store.Transaction(ctx, func(ctx context.Context) error {
		addr, _, err := e.Allocate(ctx)
		if err != nil {
			return err
		}
		payment, err = e.store.CreatePayment(ctx, req, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := enqueueWebhook(ctx, e.store, payment); err != nil {
		logger.Error(ctx, "enqueue payment.created webhook failed", zap.Error(err))
	}
	return payment, nil
}

// Run starts every background task and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	logger.Info(ctx, "starting wopay engine", zap.String("service", e.cfg.ServiceName))

	safe.GoCtx(ctx, e.follower.Run)
	safe.GoCtx(ctx, e.matcher.Run)
	safe.GoCtx(ctx, e.dispatcher.Run)
	safe.GoCtx(ctx, e.sweeper.Run)

	<-ctx.Done()
	logger.Info(ctx, "wopay engine stopping")
}
