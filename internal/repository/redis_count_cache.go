package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/socialfeed/internal/model"
)

// キャッシュ参照結果のラベル
const (
	CacheResultHit   = "hit"
	CacheResultMiss  = "miss"
	CacheResultError = "error"
)

const (
	countFieldLikes    = "likes"
	countFieldComments = "comments"
)

// CacheObserver はキャッシュ参照結果を記録する。
type CacheObserver interface {
	RecordCountCache(result string, n int)
}

// RedisCountCache はSocialCountProviderをRedisのハッシュでキャッシュするデコレータ。
// Redisが利用できない場合はbackingへそのまま委譲する。
type RedisCountCache struct {
	client   *redis.Client
	backing  SocialCountProvider
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
}

// NewRedisCountCache はRedisCountCacheを生成する。observerはnilでもよい。
func NewRedisCountCache(client *redis.Client, backing SocialCountProvider, ttl time.Duration, logger *slog.Logger, observer CacheObserver) *RedisCountCache {
	return &RedisCountCache{
		client:   client,
		backing:  backing,
		ttl:      ttl,
		logger:   logger,
		observer: observer,
	}
}

func countKey(postID int64) string {
	return fmt.Sprintf("post:counts:%d", postID)
}

// Counts はキャッシュから取得し、不足分のみbackingから読み込んで書き戻す。
func (c *RedisCountCache) Counts(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
	if len(postIDs) == 0 {
		return map[int64]model.SocialCounts{}, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(postIDs))
	for i, id := range postIDs {
		cmds[i] = pipe.HGetAll(ctx, countKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("count cache read failed, falling back to store",
			slog.String("error", err.Error()),
			slog.Int("post_count", len(postIDs)),
		)
		c.record(CacheResultError, len(postIDs))
		return c.backing.Counts(ctx, postIDs)
	}

	counts := make(map[int64]model.SocialCounts, len(postIDs))
	var misses []int64
	for i, id := range postIDs {
		entry, ok := parseCountEntry(cmds[i].Val())
		if !ok {
			misses = append(misses, id)
			continue
		}
		counts[id] = entry
	}
	c.record(CacheResultHit, len(postIDs)-len(misses))
	c.record(CacheResultMiss, len(misses))

	if len(misses) == 0 {
		return counts, nil
	}

	loaded, err := c.backing.Counts(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, entry := range loaded {
		counts[id] = entry
	}
	c.store(ctx, loaded)

	return counts, nil
}

// Evict は指定投稿のキャッシュを削除する。
func (c *RedisCountCache) Evict(ctx context.Context, postIDs ...int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = countKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict count cache: %w", err)
	}
	return nil
}

// store は読み込んだカウントをTTL付きで書き戻す。失敗してもエラーは返さない。
func (c *RedisCountCache) store(ctx context.Context, counts map[int64]model.SocialCounts) {
	if len(counts) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for id, entry := range counts {
		key := countKey(id)
		pipe.HSet(ctx, key,
			countFieldLikes, entry.LikeCount,
			countFieldComments, entry.CommentCount,
		)
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("count cache write failed",
			slog.String("error", err.Error()),
			slog.Int("post_count", len(counts)),
		)
	}
}

func (c *RedisCountCache) record(result string, n int) {
	if c.observer == nil || n == 0 {
		return
	}
	c.observer.RecordCountCache(result, n)
}

// parseCountEntry はHGETALLの結果をSocialCountsに変換する。
// フィールドが欠けている、または数値でない場合はキャッシュミスとして扱う。
func parseCountEntry(fields map[string]string) (model.SocialCounts, bool) {
	likes, ok := fields[countFieldLikes]
	if !ok {
		return model.SocialCounts{}, false
	}
	comments, ok := fields[countFieldComments]
	if !ok {
		return model.SocialCounts{}, false
	}

	likeCount, err := strconv.Atoi(likes)
	if err != nil {
		return model.SocialCounts{}, false
	}
	commentCount, err := strconv.Atoi(comments)
	if err != nil {
		return model.SocialCounts{}, false
	}

	return model.SocialCounts{LikeCount: likeCount, CommentCount: commentCount}, true
}

var _ CountCache = (*RedisCountCache)(nil)
