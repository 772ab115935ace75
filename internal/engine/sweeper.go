package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/internal/walletkey"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/xerr"
	"wopay.dev/pkg/xredis"
)

// Sweeper is C6: it periodically consolidates funds sitting in
// confirmed payment addresses into the wallet's master address, the
// way the original collection service's auto-collection cycle does.
// SweepRequested/SweepConfirmed are tracked separately: a confirmation
// pass advances sweeps already broadcast, and a recovery pass releases
// addresses that were marked requested but never actually got a sweep
// transaction row, so a crash between the two doesn't strand them.
type Sweeper struct {
	cfg    *config.Config
	store  domain.Store
	chain  domain.ChainAdapter
	encKey [32]byte
	lock   *xredis.RedisLockMaster
}

// NewSweeper wires an optional distributed lock; lock may be nil, in
// which case the recovery pass always runs (single-instance mode).
func NewSweeper(cfg *config.Config, store domain.Store, chain domain.ChainAdapter, encKey [32]byte, lock *xredis.RedisLockMaster) *Sweeper {
	return &Sweeper{cfg: cfg, store: store, chain: chain, encKey: encKey, lock: lock}
}

func (s *Sweeper) Run(ctx context.Context) {
	// Recovery pass: release addresses stranded mid-flight by a previous
	// process before falling into the steady-state interval. Only one
	// instance needs to run it, so it takes the same kind of master
	// lock the block scanner takes before a tick.
	if s.lock == nil || s.lock.TryAcquireMaster(ctx, s.lock.SweepRecoveryLockKey(), 2*time.Minute) {
		if err := s.recoverStuck(ctx); err != nil {
			logger.Error(ctx, "sweep recovery pass failed", zap.Error(err))
		}
	} else {
		logger.Debug(ctx, "sweep recovery lock held by another instance, skipping")
	}

	interval := time.Duration(s.cfg.CollectionIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				logger.Error(ctx, "sweep cycle failed", zap.Error(err))
			}
			if err := s.confirmTracked(ctx); err != nil {
				logger.Error(ctx, "sweep confirmation tick failed", zap.Error(err))
			}
		}
	}
}

// recoverStuck releases addresses left with sweep_requested set but no
// backing sweep transaction, so they're picked up by the next cycle
// instead of sitting stuck forever after a crash.
func (s *Sweeper) recoverStuck(ctx context.Context) error {
	released, err := s.store.RecoverStuckSweeps(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		logger.Info(ctx, "released stuck sweep addresses for retry", zap.Int64("count", released))
	}
	return nil
}

// confirmTracked re-checks each broadcast sweep's confirmation count and
// flips it to confirmed once it crosses the configured threshold,
// mirroring Matcher.confirmTracked's tick over payments.
func (s *Sweeper) confirmTracked(ctx context.Context) error {
	tip, err := s.chain.BlockHeight(ctx)
	if err != nil {
		return err
	}

	pending, err := s.store.PendingSweeps(ctx, 200)
	if err != nil {
		return err
	}
	required := s.cfg.RequiredConfirmations
	if required <= 0 {
		required = 12
	}

	for _, sweep := range pending {
		confirmations, status, err := s.chain.TransactionConfirmations(ctx, sweep.TxHash, tip)
		if err != nil {
			logger.Error(ctx, "check sweep confirmations failed", zap.Uint64("sweep_id", sweep.ID), zap.Error(err))
			continue
		}
		if status == domain.TxFailed {
			if err := s.store.MarkSweepFailed(ctx, sweep.ID, sweep.AddressID); err != nil {
				if !xerr.Is(err, xerr.KindStaleState) {
					logger.Error(ctx, "mark sweep failed failed", zap.Uint64("sweep_id", sweep.ID), zap.Error(err))
				}
				continue
			}
			logger.Warn(ctx, "sweep transaction reverted, address released for retry",
				zap.Uint64("sweep_id", sweep.ID), zap.String("tx_hash", sweep.TxHash))
			continue
		}
		if status == domain.TxPending || confirmations < required {
			continue
		}
		if err := s.store.MarkSweepConfirmed(ctx, sweep.ID, sweep.AddressID); err != nil {
			if !xerr.Is(err, xerr.KindStaleState) {
				logger.Error(ctx, "mark sweep confirmed failed", zap.Uint64("sweep_id", sweep.ID), zap.Error(err))
			}
			continue
		}
		logger.Info(ctx, "sweep confirmed", zap.Uint64("sweep_id", sweep.ID), zap.String("tx_hash", sweep.TxHash))
	}
	return nil
}

func (s *Sweeper) cycle(ctx context.Context) error {
	walletCfg, err := s.store.GetWalletConfig(ctx)
	if err != nil {
		return err
	}
	if !walletCfg.AutoCollectionEnabled {
		logger.Debug(ctx, "auto collection disabled, skipping cycle")
		return nil
	}

	addrs, err := s.store.AddressesReadyToSweep(ctx, 100)
	if err != nil {
		return err
	}

	swept := 0
	for i := range addrs {
		addr := addrs[i]
		ok, err := s.sweepOne(ctx, &addr, walletCfg)
		if err != nil {
			logger.Error(ctx, "sweep address failed", zap.Uint64("address_id", addr.ID), zap.Error(err))
			continue
		}
		if ok {
			swept++
		}
	}

	if swept > 0 {
		if err := s.store.RecordCollectionStat(ctx, time.Now().Truncate(24*time.Hour), swept); err != nil {
			logger.Error(ctx, "record collection stat failed", zap.Error(err))
		}
	}
	return nil
}

// sweepOne checks the address's on-chain balance against the configured
// threshold and, if it clears, sends balance-minus-gas to the master
// address.
func (s *Sweeper) sweepOne(ctx context.Context, addr *domain.PaymentAddress, walletCfg *domain.WalletConfig) (bool, error) {
	payment, err := s.store.GetPaymentByReceivingAddress(ctx, addr.Address)
	if err != nil {
		return false, err
	}

	balance, err := s.chain.Balance(ctx, addr.Address, payment.Currency)
	if err != nil {
		return false, err
	}
	if balance.LessThan(walletCfg.CollectionThreshold) {
		return false, nil
	}

	gasCost, err := s.chain.EstimateGasCost(ctx, payment.Currency)
	if err != nil {
		return false, err
	}
	sendAmount := balance.Sub(gasCost)
	if sendAmount.IsNegative() || sendAmount.IsZero() {
		logger.Warn(ctx, "balance too small to cover gas", zap.Uint64("address_id", addr.ID))
		return false, nil
	}

	if err := s.store.MarkSweepRequested(ctx, addr.ID); err != nil {
		return false, err
	}

	privateKeyHex, err := walletkey.Open(s.encKey, addr.EncryptedPrivateKey)
	if err != nil {
		return false, err
	}

	txHash, err := s.chain.SendValue(ctx, privateKeyHex, payment.Currency, walletCfg.MasterAddress, sendAmount)
	if err != nil {
		return false, err
	}

	sweep := &domain.SweepTransaction{
		AddressID: addr.ID,
		Currency:  payment.Currency,
		Amount:    sendAmount,
		GasCost:   gasCost,
		TxHash:    txHash,
		Status:    "broadcast",
	}
	if err := s.store.RecordSweep(ctx, sweep, addr.ID); err != nil {
		return false, err
	}

	logger.Info(ctx, "swept payment address",
		zap.Uint64("address_id", addr.ID), zap.String("tx_hash", txHash), zap.String("amount", sendAmount.String()))
	return true, nil
}
