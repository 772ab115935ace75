package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// applyPagination offsets and limits a query; page <= 0 or limit <= 0
// returns the query unpaginated.
func applyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	if page > 0 && limit > 0 {
		return db.Offset((page - 1) * limit).Limit(limit)
	}
	return db
}

func (s *Store) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest, addr *domain.PaymentAddress) (*domain.Payment, error) {
	var created *domain.Payment
	err := s.Transaction(ctx, func(ctx context.Context) error {
		var existing domain.Payment
		err := s.conn(ctx).Where("merchant_id = ? AND order_id = ?", req.MerchantID, req.OrderID).First(&existing).Error
		if err == nil {
			return xerr.DuplicateOrder("order_id already exists for this merchant")
		}

		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = time.Hour
		}
		p := &domain.Payment{
			MerchantID:       req.MerchantID,
			OrderID:          req.OrderID,
			Currency:         req.Currency,
			ExpectedAmount:   req.Amount,
			ReceivingAddress: addr.Address,
			Status:           domain.PaymentPending,
			CallbackURL:      req.CallbackURL,
			ExpiresAt:        time.Now().Add(expiresIn),
		}
		if err := s.conn(ctx).Create(p).Error; err != nil {
			return xerr.Store("insert payment", err)
		}

		addr.PaymentID = p.ID
		if err := s.conn(ctx).Create(addr).Error; err != nil {
			return xerr.Store("insert payment address", err)
		}

		created = p
		return nil
	})
	return created, err
}

func (s *Store) GetPayment(ctx context.Context, id uint64) (*domain.Payment, error) {
	var p domain.Payment
	if err := s.conn(ctx).First(&p, id).Error; err != nil {
		return nil, xerr.Store("get payment", err)
	}
	return &p, nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, merchantID uint64, orderID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := s.conn(ctx).Where("merchant_id = ? AND order_id = ?", merchantID, orderID).First(&p).Error; err != nil {
		return nil, xerr.Store("get payment by order id", err)
	}
	return &p, nil
}

func (s *Store) GetPaymentByReceivingAddress(ctx context.Context, address string) (*domain.Payment, error) {
	var p domain.Payment
	if err := s.conn(ctx).Where("receiving_address = ?", address).First(&p).Error; err != nil {
		return nil, xerr.Store("get payment by receiving address", err)
	}
	return &p, nil
}

func (s *Store) ListPayments(ctx context.Context, merchantID uint64, status domain.PaymentStatus, page, limit int) ([]domain.Payment, error) {
	q := s.conn(ctx).Model(&domain.Payment{})
	if merchantID != 0 {
		q = q.Where("merchant_id = ?", merchantID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = applyPagination(q, page, limit)
	var payments []domain.Payment
	if err := q.Order("id desc").Find(&payments).Error; err != nil {
		return nil, xerr.Store("list payments", err)
	}
	return payments, nil
}

func (s *Store) PendingPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	q := s.conn(ctx).Where("status = ?", domain.PaymentPending)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, xerr.Store("list pending payments", err)
	}
	return payments, nil
}

// TransitionPayment is the CAS at the heart of the confirmation tracker:
// it only ever moves a payment out of the status the caller believes it
// is in, so two confirmation ticks racing on the same payment can't both
// "win" the transition.
func (s *Store) TransitionPayment(ctx context.Context, id uint64, from, to domain.PaymentStatus, confirmations int, txHash string) error {
	updates := map[string]any{
		"status":        to,
		"confirmations": confirmations,
		"tx_hash":       txHash,
		"version":       gormExprIncr(),
	}
	res := s.conn(ctx).Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return xerr.Store("transition payment", res.Error)
	}
	if res.RowsAffected == 0 {
		return xerr.StaleState("payment is not in expected status")
	}
	return nil
}

// MarkExpiredPayments collects the candidate rows before updating them,
// since a bulk UPDATE alone can't report which rows it touched.
func (s *Store) MarkExpiredPayments(ctx context.Context, now time.Time) ([]domain.Payment, error) {
	var expired []domain.Payment
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.conn(ctx).
			Where("status = ? AND expires_at < ?", domain.PaymentPending, now).
			Find(&expired).Error; err != nil {
			return xerr.Store("select expiring payments", err)
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]uint64, len(expired))
		for i, p := range expired {
			ids[i] = p.ID
		}
		if err := s.conn(ctx).Model(&domain.Payment{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": domain.PaymentExpired, "version": gormExprIncr()}).Error; err != nil {
			return xerr.Store("mark expired payments", err)
		}
		for i := range expired {
			expired[i].Status = domain.PaymentExpired
		}
		return nil
	})
	return expired, err
}
