package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"wopay.dev/internal/config"
	"wopay.dev/internal/domain"
	"wopay.dev/pkg/logger"
)

// WebhookDispatcher is C5: it polls for due attempts and delivers them
// at-least-once, following the retry schedule and header shape of the
// original webhook service this module generalizes. Every delivery
// attempt is its own WebhookAttempt row; a retry enqueues a new row with
// the next AttemptIndex rather than mutating the one that just failed,
// so the attempt history for one payment event is a readable, ordered
// sequence.
type WebhookDispatcher struct {
	cfg    *config.Config
	store  domain.Store
	client *http.Client
	sem    *semaphore.Weighted

	perMerchantLimit int64
	merchantSemsMu   sync.Mutex
	merchantSems     map[uint64]*semaphore.Weighted
}

func NewWebhookDispatcher(cfg *config.Config, store domain.Store) *WebhookDispatcher {
	maxConcurrent := cfg.MaxConcurrentDeliveries
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	perMerchant := cfg.PerMerchantConcurrency
	if perMerchant <= 0 {
		perMerchant = 4
	}
	return &WebhookDispatcher{
		cfg:              cfg,
		store:            store,
		client:           &http.Client{Timeout: cfg.WebhookDeliveryTimeout()},
		sem:              semaphore.NewWeighted(int64(maxConcurrent)),
		perMerchantLimit: int64(perMerchant),
		merchantSems:     make(map[uint64]*semaphore.Weighted),
	}
}

// merchantSem returns the per-merchant semaphore that bounds how many
// deliveries to one merchant's endpoint can run at once, so a single
// slow or hung consumer can't consume the whole global delivery budget.
func (d *WebhookDispatcher) merchantSem(merchantID uint64) *semaphore.Weighted {
	d.merchantSemsMu.Lock()
	defer d.merchantSemsMu.Unlock()
	sem, ok := d.merchantSems[merchantID]
	if !ok {
		sem = semaphore.NewWeighted(d.perMerchantLimit)
		d.merchantSems[merchantID] = sem
	}
	return sem
}

func (d *WebhookDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

func (d *WebhookDispatcher) dispatchDue(ctx context.Context) {
	attempts, err := d.store.DueWebhookAttempts(ctx, time.Now(), 256)
	if err != nil {
		logger.Error(ctx, "list due webhook attempts failed", zap.Error(err))
		return
	}
	for i := range attempts {
		a := attempts[i]
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(attempt domain.WebhookAttempt) {
			defer d.sem.Release(1)

			merchantSem := d.merchantSem(attempt.MerchantID)
			if err := merchantSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer merchantSem.Release(1)

			d.deliver(ctx, &attempt)
		}(a)
	}
}

func (d *WebhookDispatcher) deliver(ctx context.Context, a *domain.WebhookAttempt) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader([]byte(a.Payload)))
	if err != nil {
		logger.Error(ctx, "build webhook request failed", zap.Uint64("attempt_id", a.ID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "WoPay-Webhook/1.0")
	req.Header.Set("X-WoPay-Signature", "sha256="+a.Signature)
	req.Header.Set("X-WoPay-Webhook-Id", uuid.New().String())

	resp, err := d.client.Do(req)

	var status int
	var body string
	success := false
	if err == nil {
		defer resp.Body.Close()
		status = resp.StatusCode
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		body = string(raw)
		success = status >= 200 && status < 300
	}

	if markErr := d.store.MarkWebhookResult(ctx, a.ID, success, status, body); markErr != nil {
		logger.Error(ctx, "mark webhook result failed", zap.Uint64("attempt_id", a.ID), zap.Error(markErr))
		return
	}

	if success {
		logger.Info(ctx, "webhook delivered", zap.Uint64("attempt_id", a.ID), zap.Int("status", status))
		return
	}

	delays := d.cfg.RetryDelays()
	if a.AttemptIndex > len(delays) || isPermanentStatus(status) {
		logger.Warn(ctx, "webhook delivery permanently failed",
			zap.Uint64("attempt_id", a.ID), zap.Int("status", status), zap.Error(err))
		return
	}

	next := &domain.WebhookAttempt{
		PaymentID:     a.PaymentID,
		MerchantID:    a.MerchantID,
		EventType:     a.EventType,
		URL:           a.URL,
		Payload:       a.Payload,
		Signature:     a.Signature,
		AttemptIndex:  a.AttemptIndex + 1,
		NextAttemptAt: time.Now().Add(delays[a.AttemptIndex-1]),
	}
	if err := d.store.EnqueueWebhook(ctx, next); err != nil {
		logger.Error(ctx, "enqueue webhook retry failed", zap.Uint64("attempt_id", a.ID), zap.Error(err))
		return
	}
	logger.Warn(ctx, "webhook delivery failed, scheduled retry",
		zap.Uint64("attempt_id", a.ID), zap.Int("status", status), zap.Int("next_attempt_index", next.AttemptIndex), zap.Error(err))
}

// isPermanentStatus reports whether a 4xx status represents a request
// the merchant endpoint will reject forever, which the original webhook
// service treats as non-retryable. 408 (request timeout) and 429 (rate
// limited) are excluded since both describe a transient condition on
// the merchant's side, not a malformed request.
func isPermanentStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}
