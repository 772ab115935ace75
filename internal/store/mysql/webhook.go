package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wopay.dev/internal/domain"
	"wopay.dev/pkg/xerr"
)

// EnqueueWebhook inserts a's row as-is: a fresh attempt (AttemptIndex
// defaults to 1, NextAttemptAt to now) if the caller left them zero, or
// the caller's own values when enqueuing a retry.
func (s *Store) EnqueueWebhook(ctx context.Context, a *domain.WebhookAttempt) error {
	a.Status = "pending"
	if a.NextAttemptAt.IsZero() {
		a.NextAttemptAt = time.Now()
	}
	if a.AttemptIndex == 0 {
		a.AttemptIndex = 1
	}
	if err := s.conn(ctx).Create(a).Error; err != nil {
		return xerr.Store("enqueue webhook", err)
	}
	return nil
}

// DueWebhookAttempts selects the next batch of deliverable rows with
// FOR UPDATE SKIP LOCKED. The row locks last only as long as the
// surrounding transaction; called outside one, they are released when the
// query returns, so a row that is still being delivered can be returned
// again by a later call.
func (s *Store) DueWebhookAttempts(ctx context.Context, now time.Time, limit int) ([]domain.WebhookAttempt, error) {
	var attempts []domain.WebhookAttempt
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND next_attempt_at <= ?", "pending", now).
		Order("next_attempt_at asc").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, xerr.Store("list due webhook attempts", err)
	}
	return attempts, nil
}

// MarkWebhookResult records this attempt's own terminal outcome. It
// never writes "pending" back — a retry is a new row the dispatcher
// enqueues separately once it decides the schedule allows one.
func (s *Store) MarkWebhookResult(ctx context.Context, id uint64, success bool, status int, body string) error {
	webhookStatus := "failed"
	if success {
		webhookStatus = "success"
	}
	updates := map[string]any{
		"response_status": status,
		"response_body":   body,
		"status":          webhookStatus,
	}
	if err := s.conn(ctx).Model(&domain.WebhookAttempt{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return xerr.Store("mark webhook result", err)
	}
	return nil
}

func (s *Store) WebhookStats(ctx context.Context, since time.Time) (domain.WebhookStats, error) {
	var stats domain.WebhookStats
	conn := s.conn(ctx)

	base := func() *gorm.DB {
		return conn.Model(&domain.WebhookAttempt{}).Where("created_at >= ?", since)
	}

	if err := base().Count(&stats.TotalAttempts).Error; err != nil {
		return stats, xerr.Store("count webhook attempts", err)
	}
	if err := base().Where("status = ?", "success").Count(&stats.Succeeded).Error; err != nil {
		return stats, xerr.Store("count succeeded webhooks", err)
	}
	if err := base().Where("status = ?", "failed").Count(&stats.Failed).Error; err != nil {
		return stats, xerr.Store("count failed webhooks", err)
	}
	if err := base().Where("status = ?", "pending").Count(&stats.Pending).Error; err != nil {
		return stats, xerr.Store("count pending webhooks", err)
	}
	return stats, nil
}
