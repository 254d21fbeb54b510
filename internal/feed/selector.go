package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
	"github.com/hitoshi/socialfeed/internal/repository"
)

// Viewer は解決済みのメンバーとそのフォロー先。1リクエストの間だけ使う。
type Viewer struct {
	Member      *model.Member
	FolloweeIDs []int64
}

// Selector はフォロー中フィードと推薦フィードの2つの投稿スライスを取得する。
// 2つのスライスはフォロー先の集合で分割されるため重複しない。
type Selector struct {
	graph repository.FollowGraph
	posts repository.PostRangeQuery
}

// NewSelector はSelectorを生成する。
func NewSelector(graph repository.FollowGraph, posts repository.PostRangeQuery) *Selector {
	return &Selector{graph: graph, posts: posts}
}

// Resolve はメンバーのフォロー先を読み込みViewerを返す。
func (s *Selector) Resolve(ctx context.Context, member *model.Member) (*Viewer, error) {
	ids, err := s.graph.FolloweeIDs(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("フォロー先の取得に失敗しました: %w", err)
	}
	return &Viewer{Member: member, FolloweeIDs: ids}, nil
}

// FollowingSlice はフォロー先の投稿のうちカーソルより古いものを新しい順に最大limit件返す。
// フォロー先がいない場合は空スライスを返す。
func (s *Selector) FollowingSlice(ctx context.Context, viewer *Viewer, before time.Time, beforePostID *int64, limit int) ([]*model.Post, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative: %d", limit)
	}
	if limit == 0 || len(viewer.FolloweeIDs) == 0 {
		return []*model.Post{}, nil
	}

	posts, err := s.posts.ListByAuthors(ctx, viewer.FolloweeIDs, before, beforePostID, limit)
	if err != nil {
		return nil, fmt.Errorf("フォロー中フィードの取得に失敗しました: %w", err)
	}
	return truncate(posts, limit), nil
}

// RecommendedSlice はフォロー先以外の投稿を [windowStart, windowEnd) の範囲で新しい順に最大limit件返す。
// 閲覧者自身の投稿は除外しない。
func (s *Selector) RecommendedSlice(ctx context.Context, viewer *Viewer, windowStart, windowEnd time.Time, limit int) ([]*model.Post, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative: %d", limit)
	}
	if limit == 0 {
		return []*model.Post{}, nil
	}

	posts, err := s.posts.ListExcludingAuthors(ctx, viewer.FolloweeIDs, windowStart, windowEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("推薦フィードの取得に失敗しました: %w", err)
	}
	return truncate(posts, limit), nil
}

func truncate(posts []*model.Post, limit int) []*model.Post {
	if posts == nil {
		return []*model.Post{}
	}
	if len(posts) > limit {
		return posts[:limit]
	}
	return posts
}
