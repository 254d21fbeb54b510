// Package feed はフォロー中フィードと推薦フィードを1ページに合成するドメインロジックを提供する。
package feed

import (
	"math"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
)

// Policy はフィード1ページの件数配分と推薦検索窓の設定。
// FollowingRate と RecommendRate の合計は1でなくてもよい。
type Policy struct {
	FollowingRate        float64
	RecommendRate        float64
	RecommendSearchRange time.Duration
	MaxPageSize          int // 0以下の場合は上限なし
}

// DefaultPolicy は 0.7 / 0.3 配分と7日間の検索窓を持つPolicyを返す。
func DefaultPolicy() Policy {
	return Policy{
		FollowingRate:        0.7,
		RecommendRate:        0.3,
		RecommendSearchRange: 7 * 24 * time.Hour,
		MaxPageSize:          100,
	}
}

// FollowingLimit は floor(maxSize * FollowingRate) を返す。
func (p Policy) FollowingLimit(maxSize int) int {
	return int(math.Floor(float64(maxSize) * p.FollowingRate))
}

// RecommendLimit は floor(maxSize * RecommendRate) に、フォロー中フィードの不足分を加えた件数を返す。
func (p Policy) RecommendLimit(maxSize, followingSize int) int {
	base := int(math.Floor(float64(maxSize) * p.RecommendRate))
	carry := p.FollowingLimit(maxSize) - followingSize
	if carry < 0 {
		carry = 0
	}
	return base + carry
}

// Anchor は推薦フィード検索窓の基準点とレスポンスのカーソルを表す。
type Anchor struct {
	LastTime   time.Time
	LastPostID *int64
	Fallback   bool // フォロー中フィードが空で、検索窓を将来方向に広げた場合にtrue
}

// AnchorFor はフォロー中フィードの結果からAnchorを決定する。
// 空でない場合は最も古い投稿の (created_at, id)、空の場合は
// リクエスト時刻 + RecommendSearchRange とリクエストのカーソルをそのまま使う。
func (p Policy) AnchorFor(req model.FeedRequest, following []*model.Post) Anchor {
	oldest := oldestPost(following)
	if oldest == nil {
		return Anchor{
			LastTime:   req.Timestamp.Add(p.RecommendSearchRange),
			LastPostID: req.LastPostID,
			Fallback:   true,
		}
	}

	id := oldest.ID
	return Anchor{
		LastTime:   oldest.CreatedAt,
		LastPostID: &id,
	}
}

// RecommendWindow はリクエスト時刻とアンカー時刻から [start, end) の検索窓を返す。
// 通常は [最古のフォロー投稿, リクエスト時刻)、フォールバック時は
// [リクエスト時刻, リクエスト時刻 + RecommendSearchRange) となる。
func RecommendWindow(requestTime, lastTime time.Time) (start, end time.Time) {
	if lastTime.Before(requestTime) {
		return lastTime, requestTime
	}
	return requestTime, lastTime
}

func oldestPost(posts []*model.Post) *model.Post {
	var oldest *model.Post
	for _, p := range posts {
		if oldest == nil || model.PostOrder(oldest, p) {
			oldest = p
		}
	}
	return oldest
}
