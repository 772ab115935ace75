package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLockMaster hands out master locks keyed by a caller-supplied
// string, so at most one engine instance at a time runs the work that
// key names. Every instance holding a RedisLockMaster has its own id;
// the key's value is used to tell "I already own this" from "someone
// else owns this" on renewal.
type RedisLockMaster struct {
	rdb *redis.Client
	id  string
}

func NewRedisLockMaster(rdb *redis.Client) *RedisLockMaster {
	id := fmt.Sprintf("%s%d", uuid.New().String(), time.Now().Nanosecond())
	return &RedisLockMaster{rdb: rdb, id: id}
}

// TryAcquireMaster takes the named lock with SETNX, or renews it if this
// instance already holds it. ttl bounds how long a crashed holder keeps
// the lock before another instance can take over.
func (r *RedisLockMaster) TryAcquireMaster(ctx context.Context, masterLockKey string, ttl time.Duration) bool {
	success, err := r.rdb.SetNX(ctx, masterLockKey, r.id, ttl).Result()
	if err != nil {
		fmt.Printf("[%s] redis lock error: %v\n", r.id, err)
		return false
	}

	if !success {
		val, _ := r.rdb.Get(ctx, masterLockKey).Result()
		if val == r.id {
			r.rdb.Expire(ctx, masterLockKey, ttl)
			return true
		}
	}

	return success
}

// BlockScanLockKey is the master-lock key that guards one height of one
// chain from being ingested by more than one engine instance at a time.
func (r *RedisLockMaster) BlockScanLockKey(chain string, height int64) string {
	return fmt.Sprintf("wopay:lock:block-scan:%s:%d", chain, height)
}

// SweepRecoveryLockKey is the master-lock key that guards the sweeper's
// startup recovery pass, so a restart racing another still-live instance
// doesn't release the same stuck address twice.
func (r *RedisLockMaster) SweepRecoveryLockKey() string {
	return "wopay:lock:sweep-recovery"
}
