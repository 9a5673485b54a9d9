// Package redis stores keys in Redis hashes. Every transition is a Lua script,
// so the predicate check and the write are one atomic step on the server.
//
// Layout:
//
//	keylock:key:{owner}:{category}   hash with the key fields
//	keylock:owner:{owner}            set of the owner's categories
//	keylock:idx:locked               zset of key hashes scored by locked_at
//	keylock:idx:cooloff              zset of key hashes scored by cooloff_ends_at
//
// Times are stored as unix milliseconds.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/service/keystore"
	goredis "github.com/redis/go-redis/v9"
)

const (
	lockedIndex  = "keylock:idx:locked"
	cooloffIndex = "keylock:idx:cooloff"
)

func hashKey(owner, category string) string {
	return fmt.Sprintf("keylock:key:%s:%s", owner, category)
}

func ownerKey(owner string) string {
	return "keylock:owner:" + owner
}

// Shared Lua helpers. HMGET returns false for missing fields.
const luaPrelude = `
local function num(v)
    if v then return tonumber(v) end
    return nil
end
`

// KEYS: hash, owner set. ARGV: owner, category, status, usage, created, updated
const insertLuaScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
redis.call("HSET", KEYS[1],
    "owner_id", ARGV[1], "category", ARGV[2], "status", ARGV[3],
    "usage_count", ARGV[4], "created_at", ARGV[5], "updated_at", ARGV[6])
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`

// KEYS: hash, locked idx, cooloff idx. ARGV: campaign, brand, now, dayStart, quota
const lockLuaScript = luaPrelude + `
local h = redis.call("HMGET", KEYS[1], "status", "cooloff_ends_at", "usage_count", "last_used_at")
if not h[1] then
    return 0
end
local now = tonumber(ARGV[3])
local ends = num(h[2])
local usage = num(h[3]) or 0
local last = num(h[4])

local usable = h[1] == "available" or (h[1] == "cooloff" and ends ~= nil and ends <= now)
if not usable then
    return 0
end
local newDay = last == nil or last < tonumber(ARGV[4])
if not newDay and usage >= tonumber(ARGV[5]) then
    return 0
end
if newDay then usage = 1 else usage = usage + 1 end

redis.call("HSET", KEYS[1],
    "status", "locked", "locked_with_campaign_id", ARGV[1], "locked_at", ARGV[3],
    "usage_count", usage, "last_used_at", ARGV[3], "last_brand_id", ARGV[2],
    "updated_at", ARGV[3])
redis.call("HDEL", KEYS[1], "cooloff_ends_at")
redis.call("ZREM", KEYS[3], KEYS[1])
redis.call("ZADD", KEYS[2], ARGV[3], KEYS[1])
return 1
`

// KEYS: hash, locked idx, cooloff idx. ARGV: campaign ("" = any), ends ("" = none), now
const releaseLuaScript = `
local h = redis.call("HMGET", KEYS[1], "status", "locked_with_campaign_id")
if h[1] ~= "locked" then
    return 0
end
if ARGV[1] ~= "" and h[2] ~= ARGV[1] then
    return 0
end
redis.call("HDEL", KEYS[1], "locked_with_campaign_id", "locked_at")
redis.call("ZREM", KEYS[2], KEYS[1])
if ARGV[2] == "" then
    redis.call("HDEL", KEYS[1], "cooloff_ends_at")
    redis.call("HSET", KEYS[1], "status", "available", "updated_at", ARGV[3])
else
    redis.call("HSET", KEYS[1], "status", "cooloff", "cooloff_ends_at", ARGV[2], "updated_at", ARGV[3])
    redis.call("ZADD", KEYS[3], ARGV[2], KEYS[1])
end
return 1
`

// KEYS: hash, locked idx. ARGV: campaign, now
const rollbackLuaScript = luaPrelude + `
local h = redis.call("HMGET", KEYS[1], "status", "locked_with_campaign_id", "usage_count")
if h[1] ~= "locked" or h[2] ~= ARGV[1] then
    return 0
end
local usage = num(h[3]) or 0
if usage > 0 then usage = usage - 1 end
redis.call("HDEL", KEYS[1], "locked_with_campaign_id", "locked_at")
redis.call("HSET", KEYS[1], "status", "available", "usage_count", usage, "updated_at", ARGV[2])
redis.call("ZREM", KEYS[2], KEYS[1])
return 1
`

// KEYS: hash, locked idx, cooloff idx. ARGV: now
const forceUnlockLuaScript = `
local status = redis.call("HGET", KEYS[1], "status")
if not status or status == "available" then
    return 0
end
redis.call("HDEL", KEYS[1], "locked_with_campaign_id", "locked_at", "cooloff_ends_at")
redis.call("HSET", KEYS[1], "status", "available", "updated_at", ARGV[1])
redis.call("ZREM", KEYS[2], KEYS[1])
redis.call("ZREM", KEYS[3], KEYS[1])
return 1
`

// KEYS: cooloff idx. ARGV: now
const expireLuaScript = luaPrelude + `
local members = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = 0
for _, key in ipairs(members) do
    local h = redis.call("HMGET", key, "status", "cooloff_ends_at")
    local ends = num(h[2])
    if h[1] == "cooloff" and ends ~= nil and ends <= tonumber(ARGV[1]) then
        redis.call("HDEL", key, "cooloff_ends_at")
        redis.call("HSET", key, "status", "available", "updated_at", ARGV[1])
        n = n + 1
    end
    redis.call("ZREM", KEYS[1], key)
end
return n
`

// KeyRepo implements keystore.Repository on Redis.
type KeyRepo struct {
	rdb *goredis.Client

	insertScript      *goredis.Script
	lockScript        *goredis.Script
	releaseScript     *goredis.Script
	rollbackScript    *goredis.Script
	forceUnlockScript *goredis.Script
	expireScript      *goredis.Script
}

// NewKeyRepo creates a Redis-backed key repository.
func NewKeyRepo(rdb *goredis.Client) *KeyRepo {
	return &KeyRepo{
		rdb:               rdb,
		insertScript:      goredis.NewScript(insertLuaScript),
		lockScript:        goredis.NewScript(lockLuaScript),
		releaseScript:     goredis.NewScript(releaseLuaScript),
		rollbackScript:    goredis.NewScript(rollbackLuaScript),
		forceUnlockScript: goredis.NewScript(forceUnlockLuaScript),
		expireScript:      goredis.NewScript(expireLuaScript),
	}
}

func (r *KeyRepo) Get(ctx context.Context, ownerID, category string) (*domain.Key, error) {
	return r.load(ctx, hashKey(ownerID, category))
}

func (r *KeyRepo) load(ctx context.Context, key string) (*domain.Key, error) {
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	if len(fields) == 0 {
		return nil, keystore.ErrNotFound
	}
	return decodeKey(fields)
}

func (r *KeyRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error) {
	categories, err := r.rdb.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list owner categories: %w", err)
	}
	sort.Strings(categories)

	out := make([]domain.Key, 0, len(categories))
	for _, cat := range categories {
		k, err := r.Get(ctx, ownerID, cat)
		if errors.Is(err, keystore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, nil
}

func (r *KeyRepo) Insert(ctx context.Context, k *domain.Key) error {
	res, err := r.insertScript.Run(ctx, r.rdb,
		[]string{hashKey(k.OwnerID, k.Category), ownerKey(k.OwnerID)},
		k.OwnerID, k.Category, string(k.Status), k.UsageCount,
		k.CreatedAt.UnixMilli(), k.UpdatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	if res == 0 {
		return keystore.ErrAlreadyExists
	}
	return nil
}

func (r *KeyRepo) ConditionalUpdate(ctx context.Context, u keystore.Update) (bool, error) {
	key := hashKey(u.OwnerID, u.Category)
	now := u.Now.UnixMilli()

	var cmd *goredis.Cmd
	switch u.Kind {
	case keystore.UpdateLock:
		cmd = r.lockScript.Run(ctx, r.rdb, []string{key, lockedIndex, cooloffIndex},
			u.CampaignID, u.BrandID, now, u.DayStart.UnixMilli(), u.Quota)
	case keystore.UpdateRelease:
		ends := ""
		if u.CooloffEndsAt != nil {
			ends = strconv.FormatInt(u.CooloffEndsAt.UnixMilli(), 10)
		}
		cmd = r.releaseScript.Run(ctx, r.rdb, []string{key, lockedIndex, cooloffIndex},
			u.CampaignID, ends, now)
	case keystore.UpdateRollback:
		cmd = r.rollbackScript.Run(ctx, r.rdb, []string{key, lockedIndex}, u.CampaignID, now)
	case keystore.UpdateForceUnlock:
		cmd = r.forceUnlockScript.Run(ctx, r.rdb, []string{key, lockedIndex, cooloffIndex}, now)
	default:
		return false, fmt.Errorf("unsupported key update %s", u.Kind)
	}

	n, err := cmd.Int()
	if err != nil {
		return false, fmt.Errorf("%s key: %w", u.Kind, err)
	}
	return n == 1, nil
}

func (r *KeyRepo) ExpireCooloffs(ctx context.Context, now time.Time) (int, error) {
	n, err := r.expireScript.Run(ctx, r.rdb, []string{cooloffIndex}, now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("expire cooloffs: %w", err)
	}
	return n, nil
}

func (r *KeyRepo) ListLockedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Key, error) {
	if limit <= 0 {
		limit = 500
	}
	members, err := r.rdb.ZRangeByScore(ctx, lockedIndex, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list locked keys: %w", err)
	}

	out := make([]domain.Key, 0, len(members))
	for _, m := range members {
		k, err := r.load(ctx, m)
		if errors.Is(err, keystore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if k.Status == domain.KeyLocked {
			out = append(out, *k)
		}
	}
	return out, nil
}

func decodeKey(f map[string]string) (*domain.Key, error) {
	k := &domain.Key{
		OwnerID:              f["owner_id"],
		Category:             f["category"],
		Status:               domain.KeyStatus(f["status"]),
		LockedWithCampaignID: f["locked_with_campaign_id"],
		LastBrandID:          f["last_brand_id"],
	}
	var err error
	if k.UsageCount, err = atoiField(f, "usage_count"); err != nil {
		return nil, err
	}
	for name, dst := range map[string]**time.Time{
		"locked_at":       &k.LockedAt,
		"cooloff_ends_at": &k.CooloffEndsAt,
		"last_used_at":    &k.LastUsedAt,
	} {
		if *dst, err = msField(f, name); err != nil {
			return nil, err
		}
	}
	created, err := msField(f, "created_at")
	if err != nil {
		return nil, err
	}
	updated, err := msField(f, "updated_at")
	if err != nil {
		return nil, err
	}
	if created != nil {
		k.CreatedAt = *created
	}
	if updated != nil {
		k.UpdatedAt = *updated
	}
	return k, nil
}

func atoiField(f map[string]string, name string) (int, error) {
	v, ok := f[name]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	return n, nil
}

func msField(f map[string]string, name string) (*time.Time, error) {
	v, ok := f[name]
	if !ok || v == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
