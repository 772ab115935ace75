package mysql

import (
	"context"

	"gorm.io/gorm/clause"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

func (s *Store) GetCursor(ctx context.Context, chain string) (*domain.ScanCursor, error) {
	var c domain.ScanCursor
	err := s.conn(ctx).Where("chain = ?", chain).First(&c).Error
	if err != nil {
		return nil, xerr.Store("get cursor", err)
	}
	return &c, nil
}

func (s *Store) UpdateCursor(ctx context.Context, chain string, height int64, hash string) error {
	c := &domain.ScanCursor{Chain: chain, Height: height, Hash: hash}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}},
		DoUpdates: clause.AssignmentColumns([]string{"height", "hash", "updated_at"}),
	}).Create(c).Error
	if err != nil {
		return xerr.Store("update cursor", err)
	}
	return nil
}

// NextDerivationIndex hands out a unique BIP-44 index by locking the
// highest allocated index and returning the next one inside the same
// transaction the caller uses to persist it, avoiding the race an
// in-process counter would have across multiple engine replicas.
func (s *Store) NextDerivationIndex(ctx context.Context) (uint32, error) {
	var max struct{ Max uint32 }
	err := s.conn(ctx).Model(&domain.PaymentAddress{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("COALESCE(MAX(derivation_index), 0) as max").
		Scan(&max).Error
	if err != nil {
		return 0, xerr.Store("lock derivation index", err)
	}
	return max.Max + 1, nil
}
