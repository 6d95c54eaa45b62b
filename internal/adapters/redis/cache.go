package redisad

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

const (
	entryPrefix  = "search:entry:"
	createdIndex = "search:index:created"
	expiryIndex  = "search:index:expiry"
	lockStripes  = 64
)

// SearchCache implements domain.SearchCache on Redis. Each fingerprint owns
// one hash plus a member in two index zsets (created_at and expires_at, unix
// millis as scores). Entries carry no Redis TTL: an expired entry must
// survive, flagged not fresh, until capacity eviction removes it.
//
// Reads and writes for one fingerprint are serialized through a striped
// mutex; different fingerprints proceed independently.
type SearchCache struct {
	c     *redis.Client
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

func New(addr, pass string, db int) *SearchCache {
	return &SearchCache{
		c:   redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		now: time.Now,
	}
}

func (s *SearchCache) Get(ctx context.Context, fp string) (domain.CacheEntry, bool, error) {
	mu := s.lock(fp)
	mu.Lock()
	defer mu.Unlock()

	vals, err := s.c.HGetAll(ctx, entryPrefix+fp).Result()
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	if len(vals) == 0 {
		observability.ObserveCache("search", "miss")
		return domain.CacheEntry{}, false, nil
	}
	e, err := decodeEntry(fp, vals)
	if err != nil {
		// unreadable entry: a miss; the next put overwrites it
		observability.ObserveCache("search", "miss")
		return domain.CacheEntry{}, false, nil
	}

	now := s.now()
	if !now.Before(e.ExpiresAt) {
		// expired, not deleted: flip the freshness flag so diagnostics can
		// tell "expired" from "never cached"
		if e.Fresh {
			if err := s.c.HSet(ctx, entryPrefix+fp, "fresh", "0").Err(); err != nil {
				return domain.CacheEntry{}, false, err
			}
		}
		observability.ObserveCache("search", "expired")
		return domain.CacheEntry{}, false, nil
	}
	if !e.Fresh {
		observability.ObserveCache("search", "miss")
		return domain.CacheEntry{}, false, nil
	}
	observability.ObserveCache("search", "hit")
	return e, true, nil
}

// Put inserts or replaces the entry in place: same key, new snapshot, new
// created_at/expires_at, fresh again.
func (s *SearchCache) Put(ctx context.Context, fp string, params domain.SearchParams, hotels []domain.RawHotel, upstream time.Duration, ttl time.Duration) error {
	mu := s.lock(fp)
	mu.Lock()
	defer mu.Unlock()

	pb, err := json.Marshal(params)
	if err != nil {
		return err
	}
	hb, err := json.Marshal(hotels)
	if err != nil {
		return err
	}

	now := s.now()
	created := now.UnixMilli()
	expires := now.Add(ttl).UnixMilli()

	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, entryPrefix+fp, map[string]any{
		"params":      pb,
		"hotels":      hb,
		"count":       len(hotels),
		"upstream_ms": upstream.Milliseconds(),
		"created_at":  created,
		"expires_at":  expires,
		"fresh":       "1",
	})
	pipe.ZAdd(ctx, createdIndex, redis.Z{Score: float64(created), Member: fp})
	pipe.ZAdd(ctx, expiryIndex, redis.Z{Score: float64(expires), Member: fp})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	observability.ObserveCache("search", "set")
	return nil
}

// Evict first marks every entry past its expiry as not fresh, then deletes
// oldest-created entries until the total is back under maxEntries. Returns
// how many entries were deleted.
func (s *SearchCache) Evict(ctx context.Context, maxEntries int) (int, error) {
	nowMs := strconv.FormatInt(s.now().UnixMilli(), 10)

	expired, err := s.c.ZRangeByScore(ctx, expiryIndex, &redis.ZRangeBy{Min: "-inf", Max: nowMs}).Result()
	if err != nil {
		return 0, err
	}
	for _, fp := range expired {
		mu := s.lock(fp)
		mu.Lock()
		err := s.c.HSet(ctx, entryPrefix+fp, "fresh", "0").Err()
		mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		// processed; Put re-adds members when an entry is refreshed
		if err := s.c.ZRem(ctx, expiryIndex, toAny(expired)...).Err(); err != nil {
			return 0, err
		}
	}

	if maxEntries <= 0 {
		return 0, nil
	}
	total, err := s.c.ZCard(ctx, createdIndex).Result()
	if err != nil {
		return 0, err
	}
	if int(total) <= maxEntries {
		return 0, nil
	}

	over := int(total) - maxEntries
	oldest, err := s.c.ZRange(ctx, createdIndex, 0, int64(over-1)).Result()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, fp := range oldest {
		mu := s.lock(fp)
		mu.Lock()
		pipe := s.c.TxPipeline()
		pipe.Del(ctx, entryPrefix+fp)
		pipe.ZRem(ctx, createdIndex, fp)
		pipe.ZRem(ctx, expiryIndex, fp)
		_, err := pipe.Exec(ctx)
		mu.Unlock()
		if err != nil {
			return deleted, err
		}
		deleted++
		observability.ObserveCache("search", "evicted")
	}
	return deleted, nil
}

func (s *SearchCache) lock(fp string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return &s.locks[h.Sum32()%lockStripes]
}

func decodeEntry(fp string, vals map[string]string) (domain.CacheEntry, error) {
	e := domain.CacheEntry{Fingerprint: fp}
	if v, ok := vals["params"]; ok {
		if err := json.Unmarshal([]byte(v), &e.Params); err != nil {
			return e, err
		}
	}
	if v, ok := vals["hotels"]; ok {
		if err := json.Unmarshal([]byte(v), &e.Hotels); err != nil {
			return e, err
		}
	}
	var err error
	if e.Count, err = strconv.Atoi(vals["count"]); err != nil {
		return e, err
	}
	if e.UpstreamMS, err = strconv.ParseInt(vals["upstream_ms"], 10, 64); err != nil {
		return e, err
	}
	created, err := strconv.ParseInt(vals["created_at"], 10, 64)
	if err != nil {
		return e, err
	}
	expires, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return e, err
	}
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expires)
	e.Fresh = vals["fresh"] == "1"
	return e, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
