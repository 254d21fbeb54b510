package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	FeedRate        rate.Limit    // フィード取得のレート（req/sec）
	FeedBurst       int           // フィード取得のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/member、フィード取得 60 req/min/member。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 60)
}

// NewRateLimiterConfig は分あたりのリクエスト数からRateLimiterConfigを組み立てる。
// バーストは1分間の上限と同じにする。
func NewRateLimiterConfig(generalPerMinute, feedPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		FeedRate:        rate.Limit(float64(feedPerMinute) / 60.0),
		FeedBurst:       feedPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// memberLimiter はメンバーごとのレートリミッターとアクセス時刻を保持する。
type memberLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はメンバーIDをキーとするリミッターの集合。
type limiterSet struct {
	mu       sync.RWMutex
	limiters map[int64]*memberLimiter
	rate     rate.Limit
	burst    int
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[int64]*memberLimiter),
		rate:     r,
		burst:    burst,
	}
}

// getOrCreate はメンバーのリミッターを取得または作成する。
func (s *limiterSet) getOrCreate(memberID int64) *rate.Limiter {
	s.mu.RLock()
	ml, exists := s.limiters[memberID]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		ml.lastAccess = time.Now()
		s.mu.Unlock()
		return ml.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if ml, exists := s.limiters[memberID]; exists {
		ml.lastAccess = time.Now()
		return ml.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[memberID] = &memberLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// evictIdle は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for memberID, ml := range s.limiters {
		if now.Sub(ml.lastAccess) > ttl {
			delete(s.limiters, memberID)
		}
	}
}

func (s *limiterSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// RateLimiter はメンバーごとのレート制限を管理する。
// API全般とフィード取得の2種類を独立に提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	feed    *limiterSet
	stopCh  chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		feed:    newLimiterSet(config.FeedRate, config.FeedBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// FeedMiddleware はフィード取得専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) FeedMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.feed, "feed")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, err := MemberIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.getOrCreate(memberID).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.Int64("member_id", memberID),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// FeedLimiterCount は現在管理されているフィード取得リミッターのエントリ数を返す。
func (rl *RateLimiter) FeedLimiterCount() int {
	return rl.feed.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evictIdle(now, ttl)
	rl.feed.evictIdle(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
