package domain

import (
	"context"
	"time"
)

// Store is the Payment Store (C2) surface. Every state-changing method
// runs inside its own transaction; TransitionPayment is a compare-and-swap
// guarded by the row's current status so two callers racing on the same
// payment never both win.
type Store interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest, addr *PaymentAddress) (*Payment, error)
	GetPayment(ctx context.Context, id uint64) (*Payment, error)
	GetPaymentByOrderID(ctx context.Context, merchantID uint64, orderID string) (*Payment, error)
	GetPaymentByReceivingAddress(ctx context.Context, address string) (*Payment, error)
	ListPayments(ctx context.Context, merchantID uint64, status PaymentStatus, page, limit int) ([]Payment, error)
	PendingPayments(ctx context.Context, limit int) ([]Payment, error)

	// TransitionPayment performs payments.status from -> to CAS, stamping
	// confirmations and tx_hash in the same statement — pass "" to clear
	// tx_hash, e.g. when a bound transaction turns out to have failed.
	// Returns ErrStaleState if the current row's status != from.
	TransitionPayment(ctx context.Context, id uint64, from, to PaymentStatus, confirmations int, txHash string) error
	// MarkExpiredPayments transitions every pending payment whose expiry
	// has elapsed to expired and returns the rows it changed, so a
	// caller can fan out expiry notifications.
	MarkExpiredPayments(ctx context.Context, now time.Time) ([]Payment, error)

	RecordObservedTransfer(ctx context.Context, t *ObservedTransfer) (inserted bool, err error)
	MarkTransferMatched(ctx context.Context, transferID, paymentID uint64) error
	UnmatchedTransfersForAddress(ctx context.Context, address string) ([]ObservedTransfer, error)
	// TransfersFrom returns every transfer at or above height, matched or
	// not, so a caller can find payments bound to a transfer before
	// RollbackTransfersFrom deletes the rows out from under it.
	TransfersFrom(ctx context.Context, height int64) ([]ObservedTransfer, error)
	RollbackTransfersFrom(ctx context.Context, height int64) error

	GetCursor(ctx context.Context, chain string) (*ScanCursor, error)
	UpdateCursor(ctx context.Context, chain string, height int64, hash string) error

	NextDerivationIndex(ctx context.Context) (uint32, error)

	// EnqueueWebhook inserts one delivery-attempt row. Used both for the
	// first attempt at a payment event and, by the dispatcher, for each
	// subsequent retry — a retry is a new row carrying the next
	// AttemptIndex, never a mutation of the attempt that failed.
	EnqueueWebhook(ctx context.Context, a *WebhookAttempt) error
	DueWebhookAttempts(ctx context.Context, now time.Time, limit int) ([]WebhookAttempt, error)
	// MarkWebhookResult records this attempt's own outcome: success or
	// failed. It never leaves a row pending — a retry is enqueued as a
	// separate row by the caller.
	MarkWebhookResult(ctx context.Context, id uint64, success bool, status int, body string) error
	WebhookStats(ctx context.Context, since time.Time) (WebhookStats, error)

	GetMerchant(ctx context.Context, id uint64) (*Merchant, error)

	AddressesReadyToSweep(ctx context.Context, limit int) ([]PaymentAddress, error)
	MarkSweepRequested(ctx context.Context, addressID uint64) error
	RecordSweep(ctx context.Context, s *SweepTransaction, addressID uint64) error
	// PendingSweeps returns sweep transactions broadcast but not yet
	// confirmed, for the sweeper's confirmation-tracking pass.
	PendingSweeps(ctx context.Context, limit int) ([]SweepTransaction, error)
	MarkSweepConfirmed(ctx context.Context, sweepID, addressID uint64) error
	// MarkSweepFailed records that a broadcast sweep transaction was
	// mined with a failed status and releases sweep_requested so the
	// address is picked up by the next cycle instead of sitting
	// permanently stuck behind a reverted transaction.
	MarkSweepFailed(ctx context.Context, sweepID, addressID uint64) error
	// RecoverStuckSweeps releases addresses left with sweep_requested set
	// but neither confirmed nor backed by a pending sweep row, so a crash
	// between MarkSweepRequested and RecordSweep doesn't strand them.
	RecoverStuckSweeps(ctx context.Context) (int64, error)
	GetWalletConfig(ctx context.Context) (*WalletConfig, error)
	RecordCollectionStat(ctx context.Context, day time.Time, count int) error

	// Transaction runs fn with a transactional context, so store calls fn
	// makes through the same ctx join the same database transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
