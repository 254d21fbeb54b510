package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/socialfeed/internal/model"
)

type mockCountProvider struct {
	countsFn func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error)
	calls    [][]int64
}

func (m *mockCountProvider) Counts(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
	m.calls = append(m.calls, append([]int64(nil), postIDs...))
	return m.countsFn(ctx, postIDs)
}

type recordingObserver struct {
	results map[string]int
}

func (o *recordingObserver) RecordCountCache(result string, n int) {
	if o.results == nil {
		o.results = map[string]int{}
	}
	o.results[result] += n
}

func newCacheTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Redis URLの解析に失敗: %v", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(t.Context()).Err(); err != nil {
		client.Close()
		t.Skipf("テスト用Redisに接続できません（スキップ）: %v", err)
	}
	if err := client.FlushDB(t.Context()).Err(); err != nil {
		client.Close()
		t.Fatalf("Redisの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisCountCache_UnreachableRedis_FallsBackToBacking(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	backing := &mockCountProvider{
		countsFn: func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
			return map[int64]model.SocialCounts{1: {LikeCount: 5, CommentCount: 2}}, nil
		},
	}
	observer := &recordingObserver{}
	var buf bytes.Buffer
	cache := NewRedisCountCache(client, backing, time.Minute, newCacheTestLogger(&buf), observer)

	counts, err := cache.Counts(t.Context(), []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[1].LikeCount != 5 || counts[1].CommentCount != 2 {
		t.Errorf("counts[1] = %+v, want {5 2}", counts[1])
	}
	if len(backing.calls) != 1 || len(backing.calls[0]) != 2 {
		t.Errorf("backing calls = %v, want one call with both ids", backing.calls)
	}
	if observer.results[CacheResultError] != 2 {
		t.Errorf("error count = %d, want 2", observer.results[CacheResultError])
	}
	if !bytes.Contains(buf.Bytes(), []byte("count cache read failed")) {
		t.Errorf("expected warn log, got %s", buf.String())
	}
}

func TestRedisCountCache_EmptyInput_SkipsRedis(t *testing.T) {
	backing := &mockCountProvider{
		countsFn: func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
			t.Fatal("backing should not be called")
			return nil, nil
		},
	}
	cache := NewRedisCountCache(nil, backing, time.Minute, slog.Default(), nil)

	counts, err := cache.Counts(t.Context(), nil)
	if err != nil || len(counts) != 0 {
		t.Errorf("Counts(nil) = %v, %v; want empty, nil", counts, err)
	}
	if err := cache.Evict(t.Context()); err != nil {
		t.Errorf("Evict() = %v, want nil", err)
	}
}

func TestRedisCountCache_ReadThroughAndEvict(t *testing.T) {
	client := setupTestRedis(t)

	backing := &mockCountProvider{
		countsFn: func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
			out := map[int64]model.SocialCounts{}
			for _, id := range postIDs {
				out[id] = model.SocialCounts{LikeCount: int(id) * 10, CommentCount: int(id)}
			}
			return out, nil
		},
	}
	observer := &recordingObserver{}
	var buf bytes.Buffer
	cache := NewRedisCountCache(client, backing, time.Minute, newCacheTestLogger(&buf), observer)

	first, err := cache.Counts(t.Context(), []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[2].LikeCount != 20 || first[2].CommentCount != 2 {
		t.Errorf("first[2] = %+v, want {20 2}", first[2])
	}

	second, err := cache.Counts(t.Context(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[1].LikeCount != 10 || second[3].LikeCount != 30 {
		t.Errorf("second = %+v", second)
	}
	if len(backing.calls) != 2 || len(backing.calls[1]) != 1 || backing.calls[1][0] != 3 {
		t.Errorf("backing calls = %v, want second call only for post 3", backing.calls)
	}
	if observer.results[CacheResultHit] != 2 || observer.results[CacheResultMiss] != 3 {
		t.Errorf("observer = %v, want hit=2 miss=3", observer.results)
	}

	ttl, err := client.TTL(t.Context(), countKey(1)).Result()
	if err != nil {
		t.Fatalf("TTL取得に失敗: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within (0, 1m]", ttl)
	}

	if err := cache.Evict(t.Context(), 1); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, err := cache.Counts(t.Context(), []int64{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backing.calls) != 3 || backing.calls[2][0] != 1 {
		t.Errorf("backing calls = %v, want reload of post 1 after evict", backing.calls)
	}
}

func TestRedisCountCache_BackingError_IsReturned(t *testing.T) {
	client := setupTestRedis(t)

	wantErr := errors.New("db down")
	backing := &mockCountProvider{
		countsFn: func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
			return nil, wantErr
		},
	}
	cache := NewRedisCountCache(client, backing, time.Minute, slog.Default(), nil)

	if _, err := cache.Counts(t.Context(), []int64{7}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
