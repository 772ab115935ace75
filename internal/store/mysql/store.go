// Package mysql implements domain.Store over GORM/MySQL, following the
// transaction-context-propagation pattern used across this module's
// other persistence code: Transaction stashes the *gorm.DB for the
// active transaction in the context so nested calls reuse it instead of
// opening a second one.
package mysql

import (
	"context"

	"gorm.io/gorm"

	"wopay.dev/internal/domain"
)

type txKey struct{}

type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// conn returns the transactional *gorm.DB stashed by Transaction if one
// is active on ctx, otherwise the pool-level handle.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Transaction runs fn with a *gorm.DB bound to ctx, so every store method
// fn calls through reuses the same transaction. If ctx already carries a
// transaction — a caller nesting Transaction calls, e.g. Engine.
// CreatePayment wrapping both the derivation-index lock and the payment
// insert — fn joins that one instead of opening a second, independent
// transaction that wouldn't see the outer one's locks.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// AutoMigrate creates or updates every table the engine owns.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&domain.Payment{},
		&domain.PaymentAddress{},
		&domain.ObservedTransfer{},
		&domain.ScanCursor{},
		&domain.WebhookAttempt{},
		&domain.SweepTransaction{},
		&domain.WalletConfig{},
		&domain.CollectionStat{},
		&domain.Merchant{},
	)
}
