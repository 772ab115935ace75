package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// AddressesReadyToSweep returns addresses of confirmed or completed
// payments that haven't had a sweep requested yet (the balance is not
// checked here), locked SKIP LOCKED so concurrent sweeper runs
// never race on the same address.
func (s *Store) AddressesReadyToSweep(ctx context.Context, limit int) ([]domain.PaymentAddress, error) {
	var addrs []domain.PaymentAddress
	err := s.conn(ctx).
		Joins("JOIN payments ON payments.id = payment_addresses.payment_id").
		Where("payment_addresses.sweep_requested = ? AND payments.status IN ?",
			false, []domain.PaymentStatus{domain.PaymentConfirmed, domain.PaymentCompleted}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Limit(limit).
		Find(&addrs).Error
	if err != nil {
		return nil, xerr.Store("list addresses ready to sweep", err)
	}
	return addrs, nil
}

func (s *Store) MarkSweepRequested(ctx context.Context, addressID uint64) error {
	res := s.conn(ctx).Model(&domain.PaymentAddress{}).
		Where("id = ? AND sweep_requested = ?", addressID, false).
		Update("sweep_requested", true)
	if res.Error != nil {
		return xerr.Store("mark sweep requested", res.Error)
	}
	if res.RowsAffected == 0 {
		return xerr.StaleState("sweep already requested for address")
	}
	return nil
}

// RecordSweep writes the sweep transaction row in "broadcast" status.
// Confirmation is a separate step: the sweeper's confirmation-tracking
// pass flips it to confirmed once the chain catches up.
func (s *Store) RecordSweep(ctx context.Context, sweep *domain.SweepTransaction, addressID uint64) error {
	if err := s.conn(ctx).Create(sweep).Error; err != nil {
		return xerr.Store("insert sweep transaction", err)
	}
	return nil
}

// PendingSweeps returns sweep transactions still broadcast but not yet
// confirmed, for the confirmation-tracking pass.
func (s *Store) PendingSweeps(ctx context.Context, limit int) ([]domain.SweepTransaction, error) {
	var sweeps []domain.SweepTransaction
	err := s.conn(ctx).
		Where("status = ?", "broadcast").
		Limit(limit).
		Find(&sweeps).Error
	if err != nil {
		return nil, xerr.Store("list pending sweeps", err)
	}
	return sweeps, nil
}

// MarkSweepConfirmed flips a sweep transaction and its address to
// confirmed once the chain has accumulated enough confirmations.
func (s *Store) MarkSweepConfirmed(ctx context.Context, sweepID, addressID uint64) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		res := s.conn(ctx).Model(&domain.SweepTransaction{}).
			Where("id = ? AND status = ?", sweepID, "broadcast").
			Update("status", "confirmed")
		if res.Error != nil {
			return xerr.Store("mark sweep transaction confirmed", res.Error)
		}
		if res.RowsAffected == 0 {
			return xerr.StaleState("sweep already resolved")
		}
		if err := s.conn(ctx).Model(&domain.PaymentAddress{}).
			Where("id = ?", addressID).Update("sweep_confirmed", true).Error; err != nil {
			return xerr.Store("mark address sweep confirmed", err)
		}
		return nil
	})
}

// MarkSweepFailed flips a broadcast sweep transaction to failed and
// releases the address's sweep_requested flag so the next cycle
// re-attempts collection instead of leaving it stuck behind a reverted
// transaction forever.
func (s *Store) MarkSweepFailed(ctx context.Context, sweepID, addressID uint64) error {
	return s.Transaction(ctx, func(ctx context.Context) error {
		res := s.conn(ctx).Model(&domain.SweepTransaction{}).
			Where("id = ? AND status = ?", sweepID, "broadcast").
			Update("status", "failed")
		if res.Error != nil {
			return xerr.Store("mark sweep transaction failed", res.Error)
		}
		if res.RowsAffected == 0 {
			return xerr.StaleState("sweep already resolved")
		}
		if err := s.conn(ctx).Model(&domain.PaymentAddress{}).
			Where("id = ?", addressID).Update("sweep_requested", false).Error; err != nil {
			return xerr.Store("release address after sweep failure", err)
		}
		return nil
	})
}

// RecoverStuckSweeps resets sweep_requested for addresses that were
// marked requested but have neither been confirmed nor left a pending
// sweep transaction row behind — the process that requested the sweep
// crashed before it ever broadcast one.
func (s *Store) RecoverStuckSweeps(ctx context.Context) (int64, error) {
	pending := s.conn(ctx).Model(&domain.SweepTransaction{}).
		Select("address_id").Where("status = ?", "broadcast")
	res := s.conn(ctx).Model(&domain.PaymentAddress{}).
		Where("sweep_requested = ? AND sweep_confirmed = ?", true, false).
		Where("id NOT IN (?)", pending).
		Update("sweep_requested", false)
	if res.Error != nil {
		return 0, xerr.Store("recover stuck sweeps", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) GetWalletConfig(ctx context.Context) (*domain.WalletConfig, error) {
	var cfg domain.WalletConfig
	err := s.conn(ctx).Order("created_at desc").First(&cfg).Error
	if err != nil {
		return nil, xerr.Store("get wallet config", err)
	}
	return &cfg, nil
}

func (s *Store) RecordCollectionStat(ctx context.Context, day time.Time, count int) error {
	stat := &domain.CollectionStat{Date: day, TransactionCount: count}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"transaction_count": gorm.Expr("collection_stats.transaction_count + ?", count),
		}),
	}).Create(stat).Error
	if err != nil {
		return xerr.Store("record collection stat", err)
	}
	return nil
}
