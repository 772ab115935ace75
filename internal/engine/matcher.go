package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/xerr"
)

// Matcher is C4: it pairs unmatched on-chain transfers to pending
// payments, then advances matched payments through confirmed ->
// completed as the chain accumulates confirmations, drops a matched
// payment to failed if its bound transaction turns out to have been
// mined with a reverted status, and expires payments whose window has
// elapsed with no match. First transfer seen for an address wins the
// match; later transfers to the same address are left unmatched for an
// operator to investigate.
type Matcher struct {
	cfg   *config.Config
	store domain.Store
	chain domain.ChainAdapter
}

func NewMatcher(cfg *config.Config, store domain.Store, chain domain.ChainAdapter) *Matcher {
	return &Matcher{cfg: cfg, store: store, chain: chain}
}

func (m *Matcher) Run(ctx context.Context) {
	interval := m.cfg.PollInterval
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
			if err := m.matchPending(ctx); err != nil {
				logger.Error(ctx, "match tick failed", zap.Error(err))
			}
			if err := m.confirmTracked(ctx); err != nil {
				logger.Error(ctx, "confirmation tick failed", zap.Error(err))
			}
			if err := m.expirePending(ctx); err != nil {
				logger.Error(ctx, "expiry tick failed", zap.Error(err))
			}
		}
	}
}

func (m *Matcher) matchPending(ctx context.Context) error {
	payments, err := m.store.PendingPayments(ctx, 500)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if err := m.tryMatch(ctx, &p); err != nil && !xerr.Is(err, xerr.KindStaleState) {
			logger.Error(ctx, "match payment failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
		}
	}
	return nil
}

func (m *Matcher) tryMatch(ctx context.Context, p *domain.Payment) error {
	transfers, err := m.store.UnmatchedTransfersForAddress(ctx, p.ReceivingAddress)
	if err != nil {
		return err
	}
	for _, t := range transfers {
		if t.Currency != p.Currency {
			continue
		}
		if t.Amount.LessThan(p.ExpectedAmount) {
			continue
		}
		if err := m.store.MarkTransferMatched(ctx, t.ID, p.ID); err != nil {
			return err
		}
		if err := m.store.TransitionPayment(ctx, p.ID, domain.PaymentPending, domain.PaymentConfirmed, 1, t.TxHash); err != nil {
			return err
		}
		logger.Info(ctx, "payment matched",
			zap.Uint64("payment_id", p.ID), zap.String("tx_hash", t.TxHash))

		p.Status = domain.PaymentConfirmed
		p.TxHash = t.TxHash
		p.Confirmations = 1
		if err := enqueueWebhook(ctx, m.store, p); err != nil {
			logger.Error(ctx, "enqueue payment.confirmed webhook failed", zap.Error(err))
		}
		return nil
	}
	return nil
}

func (m *Matcher) expirePending(ctx context.Context) error {
	expired, err := m.store.MarkExpiredPayments(ctx, time.Now())
	if err != nil {
		return err
	}
	for i := range expired {
		p := expired[i]
		logger.Info(ctx, "payment expired", zap.Uint64("payment_id", p.ID))
		if err := enqueueWebhook(ctx, m.store, &p); err != nil {
			logger.Error(ctx, "enqueue payment.expired webhook failed", zap.Error(err))
		}
	}
	return nil
}

// confirmTracked re-checks the matched transaction's confirmation count
// and moves a payment from confirmed to completed once it crosses the
// configured threshold, or to failed if the transaction was mined but
// reverted.
func (m *Matcher) confirmTracked(ctx context.Context) error {
	tip, err := m.chain.BlockHeight(ctx)
	if err != nil {
		return err
	}

	confirmedPayments, err := m.store.ListPayments(ctx, 0, domain.PaymentConfirmed, 0, 0)
	if err != nil {
		return err
	}
	required := m.cfg.RequiredConfirmations
	if required <= 0 {
		required = 12
	}

	for _, p := range confirmedPayments {
		confirmations, status, err := m.chain.TransactionConfirmations(ctx, p.TxHash, tip)
		if err != nil {
			logger.Error(ctx, "check confirmations failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
			continue
		}
		if status == domain.TxFailed {
			if err := failPayment(ctx, m.store, &p, "bound transaction mined with failed status"); err != nil {
				logger.Error(ctx, "fail payment failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
			}
			continue
		}
		if status == domain.TxPending {
			continue
		}
		if confirmations < required {
			// Not there yet, but the count still needs to advance on
			// every tick so a payment sitting in confirmed doesn't show
			// a stale count frozen at the value set when it matched.
			if confirmations != p.Confirmations {
				if err := m.store.TransitionPayment(ctx, p.ID, domain.PaymentConfirmed, domain.PaymentConfirmed, confirmations, p.TxHash); err != nil {
					if !xerr.Is(err, xerr.KindStaleState) {
						logger.Error(ctx, "update confirmation count failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
					}
				}
			}
			continue
		}
		if err := m.store.TransitionPayment(ctx, p.ID, domain.PaymentConfirmed, domain.PaymentCompleted, confirmations, p.TxHash); err != nil {
			if !xerr.Is(err, xerr.KindStaleState) {
				logger.Error(ctx, "complete payment failed", zap.Uint64("payment_id", p.ID), zap.Error(err))
			}
			continue
		}
		logger.Info(ctx, "payment completed", zap.Uint64("payment_id", p.ID))

		p.Status = domain.PaymentCompleted
		p.Confirmations = confirmations
		if err := enqueueWebhook(ctx, m.store, &p); err != nil {
			logger.Error(ctx, "enqueue payment.completed webhook failed", zap.Error(err))
		}
	}
	return nil
}
