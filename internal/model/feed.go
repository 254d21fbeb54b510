package model

import "time"

// FeedRequest はフィード取得リクエストを表す。
// Timestamp は排他的な上限時刻（再開位置）、LastPostID は同一時刻の投稿を区別するカーソル。
type FeedRequest struct {
	MaxSize    int
	Timestamp  time.Time
	LastPostID *int64
}

// FeedItem は1件のフィード項目を表す。レスポンスごとに生成され、永続化されない。
type FeedItem struct {
	AuthorID     int64
	AuthorName   string
	PostID       int64
	Content      string
	ImageURLs    []string
	HashTags     []string
	LikeCount    int
	CommentCount int
	CreatedAt    time.Time
	BookmarkID   *int64 // 閲覧者がブックマークしていない場合はnil
}

// FeedPage はフィード1ページ分の結果を表す。
// LastPostID / LastTimestamp はフォロー中フィードの境界（またはフォールバック時間窓）から決まり、
// Items の末尾要素とは一致しないことがある。
type FeedPage struct {
	Items         []FeedItem
	LastPostID    *int64
	LastTimestamp time.Time
}
