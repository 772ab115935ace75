package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/xredis"
)

// BlockFollower is C3: it walks the chain head-first, persists every
// transfer the chain adapter extracts from a block (whatever its
// recipient), and rewinds on reorg by
// comparing each new block's parent hash against the cursor it saved for
// the previous height — failing any payment whose matched transfer gets
// orphaned in the process.
type BlockFollower struct {
	cfg   *config.Config
	store domain.Store
	chain domain.ChainAdapter
	lock  *xredis.RedisLockMaster
}

// NewBlockFollower wires an optional distributed lock; lock may be nil,
// in which case every tick runs unconditionally (single-instance mode).
func NewBlockFollower(cfg *config.Config, store domain.Store, chain domain.ChainAdapter, lock *xredis.RedisLockMaster) *BlockFollower {
	return &BlockFollower{cfg: cfg, store: store, chain: chain, lock: lock}
}

func (f *BlockFollower) Run(ctx context.Context) {
	interval := f.cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.tick(ctx); err != nil {
				logger.Error(ctx, "block follower tick failed", zap.Error(err))
			}
		}
	}
}

// tick advances the cursor by at most one block per call, which keeps
// the per-block reorg check simple: we only ever compare the block we
// are about to ingest against the one we ingested immediately before it.
func (f *BlockFollower) tick(ctx context.Context) error {
	cursor, err := f.store.GetCursor(ctx, chainName)
	if err != nil {
		head, herr := f.chain.BlockHeight(ctx)
		if herr != nil {
			return herr
		}
		return f.store.UpdateCursor(ctx, chainName, head, "")
	}

	tip, err := f.chain.BlockHeight(ctx)
	if err != nil {
		return err
	}
	if cursor.Height >= tip {
		return nil
	}

	next := cursor.Height + 1

	if f.lock != nil && !f.lock.TryAcquireMaster(ctx, f.lock.BlockScanLockKey(chainName, next), f.lockTTL()) {
		logger.Debug(ctx, "block scan lock held by another instance, skipping height", zap.Int64("height", next))
		return nil
	}

	block, err := f.chain.BlockByHeight(ctx, next)
	if err != nil {
		return err
	}

	if cursor.Hash != "" && block.PrevHash != cursor.Hash {
		return f.handleReorg(ctx, cursor)
	}

	return f.ingest(ctx, block)
}

// handleReorg rewinds the cursor ReorgDepth blocks (64 when unset), fails
// any payment bound to a transfer above the new cursor, and deletes every
// transfer above it, so the following ticks re-fetch the new canonical
// blocks from there.
func (f *BlockFollower) handleReorg(ctx context.Context, cursor *domain.ScanCursor) error {
	reorgDepth := f.cfg.ReorgDepth
	if reorgDepth <= 0 {
		reorgDepth = 64
	}
	rewindTo := cursor.Height - reorgDepth
	if rewindTo < 0 {
		rewindTo = 0
	}

	logger.Warn(ctx, "reorg detected, rewinding",
		zap.Int64("cursor_height", cursor.Height), zap.Int64("rewind_to", rewindTo))

	if err := f.failPaymentsBoundToOrphanedTransfers(ctx, rewindTo+1); err != nil {
		return err
	}
	if err := f.store.RollbackTransfersFrom(ctx, rewindTo+1); err != nil {
		return err
	}
	return f.store.UpdateCursor(ctx, chainName, rewindTo, "")
}

// failPaymentsBoundToOrphanedTransfers looks up every payment matched to
// a transfer at or above fromHeight — transfers about to be deleted
// because the chain segment that carried them no longer exists — and
// drops it to failed before the transfer row disappears, so a payment
// that was bound to a transaction the reorg dropped doesn't sit stuck in
// confirmed forever with no webhook.
func (f *BlockFollower) failPaymentsBoundToOrphanedTransfers(ctx context.Context, fromHeight int64) error {
	orphaned, err := f.store.TransfersFrom(ctx, fromHeight)
	if err != nil {
		return err
	}
	for _, t := range orphaned {
		if t.MatchedID == 0 {
			continue
		}
		p, err := f.store.GetPayment(ctx, t.MatchedID)
		if err != nil {
			logger.Error(ctx, "lookup payment bound to orphaned transfer failed",
				zap.Uint64("payment_id", t.MatchedID), zap.Error(err))
			continue
		}
		if err := failPayment(ctx, f.store, p, "bound transaction dropped by reorg"); err != nil {
			logger.Error(ctx, "fail reorged payment failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
		}
	}
	return nil
}

// lockTTL keeps the block-scan lock alive for a few poll intervals so a
// slow tick doesn't let another instance steal it mid-ingest.
func (f *BlockFollower) lockTTL() time.Duration {
	interval := f.cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return interval * 5
}

func (f *BlockFollower) ingest(ctx context.Context, block *domain.StandardBlock) error {
	for i := range block.Transfers {
		t := block.Transfers[i]
		inserted, err := f.store.RecordObservedTransfer(ctx, &t)
		if err != nil {
			return err
		}
		if inserted {
			logger.Info(ctx, "observed transfer",
				zap.String("tx_hash", t.TxHash),
				zap.String("to", t.ToAddress),
				zap.String("amount", t.Amount.String()),
				zap.String("currency", string(t.Currency)))
		}
	}
	return f.store.UpdateCursor(ctx, chainName, block.Height, block.Hash)
}
