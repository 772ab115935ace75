package mysql

import (
	"context"

	"gorm.io/gorm/clause"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// RecordObservedTransfer inserts a transfer, ignoring the row if
// (tx_hash, log_index) has already been seen — the same idempotent-upsert
// idiom this module uses for cursor updates, which makes block re-delivery
// after a follower restart safe.
func (s *Store) RecordObservedTransfer(ctx context.Context, t *domain.ObservedTransfer) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		return false, xerr.Store("insert observed transfer", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkTransferMatched(ctx context.Context, transferID, paymentID uint64) error {
	res := s.conn(ctx).Model(&domain.ObservedTransfer{}).
		Where("id = ? AND matched_id = 0", transferID).
		Update("matched_id", paymentID)
	if res.Error != nil {
		return xerr.Store("mark transfer matched", res.Error)
	}
	if res.RowsAffected == 0 {
		return xerr.StaleState("transfer already matched")
	}
	return nil
}

func (s *Store) UnmatchedTransfersForAddress(ctx context.Context, address string) ([]domain.ObservedTransfer, error) {
	var transfers []domain.ObservedTransfer
	err := s.conn(ctx).Where("to_address = ? AND matched_id = 0", address).
		Order("block_height asc, log_index asc").Find(&transfers).Error
	if err != nil {
		return nil, xerr.Store("list unmatched transfers", err)
	}
	return transfers, nil
}

// TransfersFrom returns every transfer at or above height, matched or
// not, so the Block Follower can look up and fail any payment bound to
// one of them before the rows are deleted.
func (s *Store) TransfersFrom(ctx context.Context, height int64) ([]domain.ObservedTransfer, error) {
	var transfers []domain.ObservedTransfer
	err := s.conn(ctx).Where("block_height >= ?", height).Find(&transfers).Error
	if err != nil {
		return nil, xerr.Store("list transfers from height", err)
	}
	return transfers, nil
}

// RollbackTransfersFrom deletes every transfer at or above height,
// undoing what a since-orphaned chain segment contributed. The Block
// Follower calls this on reorg detection before re-scanning from the
// last common ancestor.
func (s *Store) RollbackTransfersFrom(ctx context.Context, height int64) error {
	err := s.conn(ctx).Where("block_height >= ?", height).Delete(&domain.ObservedTransfer{}).Error
	if err != nil {
		return xerr.Store("rollback transfers", err)
	}
	return nil
}
