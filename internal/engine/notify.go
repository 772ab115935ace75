package engine

import (
	"context"

	"go.uber.org/zap"

	"wopay.dev/internal/domain"
	"wopay.dev/internal/webhook"
	"wopay.dev/pkg/logger"
	"wopay.dev/pkg/xerr"
)

// enqueueWebhook stores a pending delivery attempt for the merchant's
// webhook_url. It never calls out over HTTP itself — that's the
// dispatcher's job — so a slow or unreachable merchant can never block
// the matcher loop.
func enqueueWebhook(ctx context.Context, store domain.Store, p *domain.Payment) error {
	merchant, err := store.GetMerchant(ctx, p.MerchantID)
	if err != nil {
		return err
	}
	if merchant.Status != domain.MerchantActive || merchant.WebhookURL == "" {
		return nil
	}
	body, event, err := webhook.BuildPayload(p)
	if err != nil {
		return err
	}
	attempt := &domain.WebhookAttempt{
		PaymentID:  p.ID,
		MerchantID: p.MerchantID,
		EventType:  event,
		URL:        merchant.WebhookURL,
		Payload:    string(body),
		Signature:  webhook.Sign(merchant.APISecret, body),
	}
	return store.EnqueueWebhook(ctx, attempt)
}

// failPayment moves a payment bound to a transaction that turned out to
// be permanently unminable — reverted, or dropped by a reorg and never
// re-included — into failed, clearing tx_hash so nothing downstream
// mistakes it for still pointing at a live transaction, then fires the
// payment.failed webhook. A no-op if p is no longer in a state the
// transaction could still affect, since a concurrent tick may have
// already moved it to completed or another terminal status.
func failPayment(ctx context.Context, store domain.Store, p *domain.Payment, reason string) error {
	if p.Status != domain.PaymentConfirmed {
		return nil
	}
	if err := store.TransitionPayment(ctx, p.ID, domain.PaymentConfirmed, domain.PaymentFailed, 0, ""); err != nil {
		if xerr.Is(err, xerr.KindStaleState) {
			return nil
		}
		return err
	}
	logger.Info(ctx, "payment failed", zap.Uint64("payment_id", p.ID), zap.String("reason", reason))

	p.Status = domain.PaymentFailed
	p.TxHash = ""
	p.Confirmations = 0
	return enqueueWebhook(ctx, store, p)
}
