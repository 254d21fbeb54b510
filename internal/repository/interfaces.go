// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
)

// MemberRepository はメンバー情報の参照インターフェース。
type MemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Member, error)
}

// FollowGraph はフォロー関係の参照インターフェース。
type FollowGraph interface {
	// FolloweeIDs は指定メンバーがフォローしているメンバーのID一覧を返す。
	// フォローしていない場合は空スライスを返す。
	FolloweeIDs(ctx context.Context, memberID int64) ([]int64, error)
}

// PostRangeQuery は投稿の範囲検索インターフェース。
// どちらのクエリも created_at DESC, id DESC の順で返す。
type PostRangeQuery interface {
	// ListByAuthors は指定した投稿者の投稿のうち、カーソル (before, beforePostID) より
	// 古いものを最大limit件返す。beforePostIDがnilの場合は created_at < before のみで絞り込む。
	ListByAuthors(ctx context.Context, authorIDs []int64, before time.Time, beforePostID *int64, limit int) ([]*model.Post, error)

	// ListExcludingAuthors は指定した投稿者以外の投稿のうち、
	// windowStart <= created_at < windowEnd のものを最大limit件返す。
	ListExcludingAuthors(ctx context.Context, excludedIDs []int64, windowStart, windowEnd time.Time, limit int) ([]*model.Post, error)
}

// SocialCountProvider は投稿ごとのいいね数・コメント数を提供する。
type SocialCountProvider interface {
	// Counts は投稿IDをキーとしたカウントを返す。
	// 反応のない投稿はマップに含まれないことがある。
	Counts(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error)
}

// CountCache はキャッシュ付きのSocialCountProvider。
type CountCache interface {
	SocialCountProvider

	// Evict は指定投稿のキャッシュを破棄する。
	Evict(ctx context.Context, postIDs ...int64) error
}

// BookmarkLookup は閲覧者のブックマークを参照する。
type BookmarkLookup interface {
	// BookmarkIDs は投稿IDをキーとしたブックマークIDを返す。
	// ブックマークしていない投稿はマップに含まれない。
	BookmarkIDs(ctx context.Context, viewerID int64, postIDs []int64) (map[int64]int64, error)
}
