package engine

import (
	"context"
	"sync"
	"time"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// fakeStore is a minimal in-memory domain.Store used only by this
// package's tests — no sqlite or live MySQL involved.
type fakeStore struct {
	mu sync.Mutex

	payments   map[uint64]*domain.Payment
	transfers  map[uint64]*domain.ObservedTransfer
	merchants  map[uint64]*domain.Merchant
	attempts   map[uint64]*domain.WebhookAttempt
	addrs      map[uint64]*domain.PaymentAddress
	sweeps     map[uint64]*domain.SweepTransaction
	walletCfg  *domain.WalletConfig
	cursor     *domain.ScanCursor
	nextID     uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:  make(map[uint64]*domain.Payment),
		transfers: make(map[uint64]*domain.ObservedTransfer),
		merchants: make(map[uint64]*domain.Merchant),
		attempts:  make(map[uint64]*domain.WebhookAttempt),
		addrs:     make(map[uint64]*domain.PaymentAddress),
		sweeps:    make(map[uint64]*domain.SweepTransaction),
	}
}

func (f *fakeStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) id() uint64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest, addr *domain.PaymentAddress) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.MerchantID == req.MerchantID && p.OrderID == req.OrderID {
			return nil, xerr.DuplicateOrder("dup")
		}
	}
	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	p := &domain.Payment{
		ID:               f.id(),
		MerchantID:       req.MerchantID,
		OrderID:          req.OrderID,
		Currency:         req.Currency,
		ExpectedAmount:   req.Amount,
		ReceivingAddress: addr.Address,
		Status:           domain.PaymentPending,
		ExpiresAt:        time.Now().Add(expiresIn),
	}
	f.payments[p.ID] = p
	addr.ID = f.id()
	addr.PaymentID = p.ID
	f.addrs[addr.ID] = addr
	return p, nil
}

func (f *fakeStore) GetPayment(ctx context.Context, id uint64) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, xerr.Store("not found", nil)
	}
	return p, nil
}

func (f *fakeStore) GetPaymentByOrderID(ctx context.Context, merchantID uint64, orderID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.MerchantID == merchantID && p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, xerr.Store("not found", nil)
}

func (f *fakeStore) GetPaymentByReceivingAddress(ctx context.Context, address string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.ReceivingAddress == address {
			return p, nil
		}
	}
	return nil, xerr.Store("not found", nil)
}

func (f *fakeStore) ListPayments(ctx context.Context, merchantID uint64, status domain.PaymentStatus, page, limit int) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, p := range f.payments {
		if merchantID != 0 && p.MerchantID != merchantID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) PendingPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	return f.ListPayments(ctx, 0, domain.PaymentPending, 0, 0)
}

func (f *fakeStore) TransitionPayment(ctx context.Context, id uint64, from, to domain.PaymentStatus, confirmations int, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return xerr.Store("not found", nil)
	}
	if p.Status != from {
		return xerr.StaleState("status mismatch")
	}
	p.Status = to
	p.Confirmations = confirmations
	p.TxHash = txHash
	return nil
}

func (f *fakeStore) MarkExpiredPayments(ctx context.Context, now time.Time) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []domain.Payment
	for _, p := range f.payments {
		if p.Status == domain.PaymentPending && p.ExpiresAt.Before(now) {
			p.Status = domain.PaymentExpired
			expired = append(expired, *p)
		}
	}
	return expired, nil
}

func (f *fakeStore) RecordObservedTransfer(ctx context.Context, t *domain.ObservedTransfer) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.transfers {
		if existing.TxHash == t.TxHash && existing.LogIndex == t.LogIndex {
			return false, nil
		}
	}
	t.ID = f.id()
	f.transfers[t.ID] = t
	return true, nil
}

func (f *fakeStore) MarkTransferMatched(ctx context.Context, transferID, paymentID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[transferID]
	if !ok {
		return xerr.Store("not found", nil)
	}
	if t.MatchedID != 0 {
		return xerr.StaleState("already matched")
	}
	t.MatchedID = paymentID
	return nil
}

func (f *fakeStore) UnmatchedTransfersForAddress(ctx context.Context, address string) ([]domain.ObservedTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ObservedTransfer
	for _, t := range f.transfers {
		if t.ToAddress == address && t.MatchedID == 0 {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) TransfersFrom(ctx context.Context, height int64) ([]domain.ObservedTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ObservedTransfer
	for _, t := range f.transfers {
		if t.BlockHeight >= height {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) RollbackTransfersFrom(ctx context.Context, height int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.transfers {
		if t.BlockHeight >= height {
			delete(f.transfers, id)
		}
	}
	return nil
}

func (f *fakeStore) GetCursor(ctx context.Context, chain string) (*domain.ScanCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursor == nil {
		return nil, xerr.Store("not found", nil)
	}
	c := *f.cursor
	return &c, nil
}

func (f *fakeStore) UpdateCursor(ctx context.Context, chain string, height int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = &domain.ScanCursor{Chain: chain, Height: height, Hash: hash}
	return nil
}

func (f *fakeStore) NextDerivationIndex(ctx context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint32(len(f.addrs) + 1), nil
}

func (f *fakeStore) EnqueueWebhook(ctx context.Context, a *domain.WebhookAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	a.Status = "pending"
	if a.NextAttemptAt.IsZero() {
		a.NextAttemptAt = time.Now()
	}
	if a.AttemptIndex == 0 {
		a.AttemptIndex = 1
	}
	f.attempts[a.ID] = a
	return nil
}

func (f *fakeStore) DueWebhookAttempts(ctx context.Context, now time.Time, limit int) ([]domain.WebhookAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookAttempt
	for _, a := range f.attempts {
		if a.Status == "pending" {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkWebhookResult(ctx context.Context, id uint64, success bool, status int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return xerr.Store("not found", nil)
	}
	a.ResponseStatus = status
	a.ResponseBody = body
	if success {
		a.Status = "success"
	} else {
		a.Status = "failed"
	}
	return nil
}

func (f *fakeStore) WebhookStats(ctx context.Context, since time.Time) (domain.WebhookStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats domain.WebhookStats
	for _, a := range f.attempts {
		stats.TotalAttempts++
		switch a.Status {
		case "success":
			stats.Succeeded++
		case "failed":
			stats.Failed++
		case "pending":
			stats.Pending++
		}
	}
	return stats, nil
}

func (f *fakeStore) GetMerchant(ctx context.Context, id uint64) (*domain.Merchant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[id]
	if !ok {
		return nil, xerr.Store("not found", nil)
	}
	return m, nil
}

func (f *fakeStore) AddressesReadyToSweep(ctx context.Context, limit int) ([]domain.PaymentAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentAddress
	for _, a := range f.addrs {
		if !a.SweepRequested {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSweepRequested(ctx context.Context, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addrs[addressID]
	if !ok {
		return xerr.Store("not found", nil)
	}
	if a.SweepRequested {
		return xerr.StaleState("already requested")
	}
	a.SweepRequested = true
	return nil
}

func (f *fakeStore) RecordSweep(ctx context.Context, s *domain.SweepTransaction, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = f.id()
	if s.Status == "" {
		s.Status = "broadcast"
	}
	cp := *s
	f.sweeps[cp.ID] = &cp
	return nil
}

func (f *fakeStore) PendingSweeps(ctx context.Context, limit int) ([]domain.SweepTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SweepTransaction
	for _, sw := range f.sweeps {
		if sw.Status == "broadcast" {
			out = append(out, *sw)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSweepConfirmed(ctx context.Context, sweepID, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw, ok := f.sweeps[sweepID]
	if !ok || sw.Status != "broadcast" {
		return xerr.StaleState("sweep already resolved")
	}
	sw.Status = "confirmed"
	if a, ok := f.addrs[addressID]; ok {
		a.SweepConfirmed = true
	}
	return nil
}

func (f *fakeStore) MarkSweepFailed(ctx context.Context, sweepID, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw, ok := f.sweeps[sweepID]
	if !ok || sw.Status != "broadcast" {
		return xerr.StaleState("sweep already resolved")
	}
	sw.Status = "failed"
	if a, ok := f.addrs[addressID]; ok {
		a.SweepRequested = false
	}
	return nil
}

func (f *fakeStore) RecoverStuckSweeps(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := make(map[uint64]bool)
	for _, sw := range f.sweeps {
		if sw.Status == "broadcast" {
			pending[sw.AddressID] = true
		}
	}
	var released int64
	for _, a := range f.addrs {
		if a.SweepRequested && !a.SweepConfirmed && !pending[a.ID] {
			a.SweepRequested = false
			released++
		}
	}
	return released, nil
}

func (f *fakeStore) GetWalletConfig(ctx context.Context) (*domain.WalletConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.walletCfg == nil {
		return nil, xerr.Store("not found", nil)
	}
	cfg := *f.walletCfg
	return &cfg, nil
}

func (f *fakeStore) RecordCollectionStat(ctx context.Context, day time.Time, count int) error {
	return nil
}
