package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

// Cache holds read accelerators. The database stays the source of truth:
// a miss or a cache error only means the caller goes to the store.
//
// Balances are versioned: InvalidateBalances bumps a wallet's version, and
// SetBalance only writes when the version is still the one the caller read
// before loading the wallet. A fill racing with a commit is dropped instead
// of caching the pre-commit balance.
type Cache interface {
	Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, bool, error)
	BalanceVersion(ctx context.Context, walletID uuid.UUID) (int64, error)
	SetBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal, version int64) error
	InvalidateBalances(ctx context.Context, walletIDs ...uuid.UUID) error
	Receipt(ctx context.Context, buyerID uuid.UUID, key string) (*model.Receipt, bool, error)
	SetReceipt(ctx context.Context, buyerID uuid.UUID, key string, r *model.Receipt) error
	InvalidateReceipt(ctx context.Context, buyerID uuid.UUID, key string) error
}

// setBalanceScript writes KEYS[1] only if the version in KEYS[2] equals ARGV[2].
var setBalanceScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	rdb        *redis.Client
	balanceTTL time.Duration
	receiptTTL time.Duration
}

func NewRedisCache(rdb *redis.Client, receiptTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, balanceTTL: 10 * time.Minute, receiptTTL: receiptTTL}
}

func balanceKey(walletID uuid.UUID) string {
	return fmt.Sprintf("balance:%s", walletID)
}

func balanceVersionKey(walletID uuid.UUID) string {
	return fmt.Sprintf("balance:version:%s", walletID)
}

func receiptKey(buyerID uuid.UUID, key string) string {
	return fmt.Sprintf("receipt:%s:%s", buyerID, key)
}

func (c *RedisCache) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, bool, error) {
	val, err := c.rdb.Get(ctx, balanceKey(walletID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get balance: %w", err)
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode cached balance: %w", err)
	}
	return balance, true, nil
}

func (c *RedisCache) BalanceVersion(ctx context.Context, walletID uuid.UUID) (int64, error) {
	v, err := c.rdb.Get(ctx, balanceVersionKey(walletID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get balance version: %w", err)
	}
	return v, nil
}

func (c *RedisCache) SetBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal, version int64) error {
	keys := []string{balanceKey(walletID), balanceVersionKey(walletID)}
	err := setBalanceScript.Run(ctx, c.rdb, keys,
		balance.StringFixed(2), strconv.FormatInt(version, 10), c.balanceTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis set balance: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateBalances(ctx context.Context, walletIDs ...uuid.UUID) error {
	if len(walletIDs) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range walletIDs {
			pipe.Incr(ctx, balanceVersionKey(id))
			pipe.Del(ctx, balanceKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate balances: %w", err)
	}
	return nil
}

func (c *RedisCache) Receipt(ctx context.Context, buyerID uuid.UUID, key string) (*model.Receipt, bool, error) {
	data, err := c.rdb.Get(ctx, receiptKey(buyerID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get receipt: %w", err)
	}
	var r model.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached receipt: %w", err)
	}
	return &r, true, nil
}

func (c *RedisCache) SetReceipt(ctx context.Context, buyerID uuid.UUID, key string, r *model.Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	if err := c.rdb.Set(ctx, receiptKey(buyerID, key), data, c.receiptTTL).Err(); err != nil {
		return fmt.Errorf("redis set receipt: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateReceipt(ctx context.Context, buyerID uuid.UUID, key string) error {
	if err := c.rdb.Del(ctx, receiptKey(buyerID, key)).Err(); err != nil {
		return fmt.Errorf("redis del receipt: %w", err)
	}
	return nil
}

// NopCache is used when no Redis is configured. Every lookup misses.
type NopCache struct{}

func (NopCache) Balance(context.Context, uuid.UUID) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (NopCache) BalanceVersion(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (NopCache) SetBalance(context.Context, uuid.UUID, decimal.Decimal, int64) error { return nil }

func (NopCache) InvalidateBalances(context.Context, ...uuid.UUID) error { return nil }

func (NopCache) Receipt(context.Context, uuid.UUID, string) (*model.Receipt, bool, error) {
	return nil, false, nil
}

func (NopCache) SetReceipt(context.Context, uuid.UUID, string, *model.Receipt) error { return nil }

func (NopCache) InvalidateReceipt(context.Context, uuid.UUID, string) error { return nil }
