package mysql

import (
	"context"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

func (s *Store) GetMerchant(ctx context.Context, id uint64) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := s.conn(ctx).First(&m, id).Error; err != nil {
		return nil, xerr.Store("get merchant", err)
	}
	return &m, nil
}
