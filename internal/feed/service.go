package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
	"github.com/hitoshi/socialfeed/internal/repository"
)

// フィード取得結果のラベル
const (
	ResultSuccess        = "success"
	ResultInvalidRequest = "invalid_request"
	ResultNotFound       = "not_found"
	ResultError          = "error"
)

// スライス種別のラベル
const (
	SliceFollowing   = "following"
	SliceRecommended = "recommended"
)

// SliceSelector はServiceが使う投稿スライスの取得インターフェース。
type SliceSelector interface {
	Resolve(ctx context.Context, member *model.Member) (*Viewer, error)
	FollowingSlice(ctx context.Context, viewer *Viewer, before time.Time, beforePostID *int64, limit int) ([]*model.Post, error)
	RecommendedSlice(ctx context.Context, viewer *Viewer, windowStart, windowEnd time.Time, limit int) ([]*model.Post, error)
}

// ItemAssembler は投稿をFeedItemに変換するインターフェース。
type ItemAssembler interface {
	Assemble(ctx context.Context, viewerID int64, posts []*model.Post) []model.FeedItem
}

// Recorder はフィード取得のメトリクスを記録する。
type Recorder interface {
	RecordFeedRequest(result string, duration time.Duration)
	RecordFeedSlice(slice string, size int)
	RecordFeedFallback()
}

type noopRecorder struct{}

func (noopRecorder) RecordFeedRequest(string, time.Duration) {}
func (noopRecorder) RecordFeedSlice(string, int)             {}
func (noopRecorder) RecordFeedFallback()                     {}

// Service はフィード1ページ分の取得を統括する。
// リクエスト間で共有する可変状態を持たないため、並行に呼び出してよい。
type Service struct {
	members   repository.MemberRepository
	selector  SliceSelector
	assembler ItemAssembler
	policy    Policy
	recorder  Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewService(
	members repository.MemberRepository,
	selector SliceSelector,
	assembler ItemAssembler,
	policy Policy,
	recorder Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		members:   members,
		selector:  selector,
		assembler: assembler,
		policy:    policy,
		recorder:  recorder,
		logger:    logger,
	}
}

// FindList は閲覧者のフィードを1ページ返す。
//
// フォロー中フィードを floor(maxSize * FollowingRate) 件まで取得し、その最古の投稿を
// 推薦フィードの検索窓の端点とする。フォロー中フィードが空の場合は
// リクエスト時刻 + RecommendSearchRange までを検索窓とする。推薦フィードの件数は
// フォロー中フィードの不足分だけ増える。結果は作成日時の昇順（同時刻はID昇順）に並べる。
//
// 返却するカーソルはフォロー中フィードの最古の投稿（またはフォールバック時の検索窓）から決まり、
// 並べ替え後の末尾の投稿とは限らない。
func (s *Service) FindList(ctx context.Context, req model.FeedRequest, viewerID int64) (*model.FeedPage, error) {
	start := time.Now()

	if err := s.validate(req); err != nil {
		s.recorder.RecordFeedRequest(ResultInvalidRequest, time.Since(start))
		return nil, err
	}

	member, err := s.members.FindByID(ctx, viewerID)
	if err != nil {
		s.recorder.RecordFeedRequest(ResultError, time.Since(start))
		return nil, fmt.Errorf("メンバーの取得に失敗しました: %w", err)
	}
	if member == nil {
		s.recorder.RecordFeedRequest(ResultNotFound, time.Since(start))
		return nil, model.NewMemberNotFoundError(viewerID)
	}

	page, err := s.buildPage(ctx, req, member)
	if err != nil {
		s.recorder.RecordFeedRequest(ResultError, time.Since(start))
		return nil, err
	}

	s.recorder.RecordFeedRequest(ResultSuccess, time.Since(start))
	return page, nil
}

func (s *Service) validate(req model.FeedRequest) error {
	if req.MaxSize <= 0 {
		return model.NewInvalidRequestError("maxSize must be positive")
	}
	if s.policy.MaxPageSize > 0 && req.MaxSize > s.policy.MaxPageSize {
		return model.NewInvalidRequestError(fmt.Sprintf("maxSize must not exceed %d", s.policy.MaxPageSize))
	}
	if req.Timestamp.IsZero() {
		return model.NewInvalidRequestError("timestamp is required")
	}
	return nil
}

func (s *Service) buildPage(ctx context.Context, req model.FeedRequest, member *model.Member) (*model.FeedPage, error) {
	viewer, err := s.selector.Resolve(ctx, member)
	if err != nil {
		return nil, err
	}

	followingLimit := s.policy.FollowingLimit(req.MaxSize)
	following, err := s.selector.FollowingSlice(ctx, viewer, req.Timestamp, req.LastPostID, followingLimit)
	if err != nil {
		return nil, err
	}

	anchor := s.policy.AnchorFor(req, following)
	if anchor.Fallback {
		s.recorder.RecordFeedFallback()
	}

	recommendLimit := s.policy.RecommendLimit(req.MaxSize, len(following))
	windowStart, windowEnd := RecommendWindow(req.Timestamp, anchor.LastTime)
	recommended, err := s.selector.RecommendedSlice(ctx, viewer, windowStart, windowEnd, recommendLimit)
	if err != nil {
		return nil, err
	}

	s.recorder.RecordFeedSlice(SliceFollowing, len(following))
	s.recorder.RecordFeedSlice(SliceRecommended, len(recommended))

	s.logger.DebugContext(ctx, "feed slices selected",
		slog.Int64("member_id", member.ID),
		slog.Int("max_size", req.MaxSize),
		slog.Int("following_limit", followingLimit),
		slog.Int("following_size", len(following)),
		slog.Int("recommend_limit", recommendLimit),
		slog.Int("recommended_size", len(recommended)),
		slog.Bool("fallback", anchor.Fallback),
	)

	posts := make([]*model.Post, 0, len(following)+len(recommended))
	posts = append(posts, following...)
	posts = append(posts, recommended...)
	slices.SortStableFunc(posts, compareCreatedAsc)

	return &model.FeedPage{
		Items:         s.assembler.Assemble(ctx, member.ID, posts),
		LastPostID:    anchor.LastPostID,
		LastTimestamp: anchor.LastTime,
	}, nil
}

// compareCreatedAsc は created_at ASC, id ASC の比較関数。
func compareCreatedAsc(a, b *model.Post) int {
	switch {
	case model.PostOrder(a, b):
		return 1
	case model.PostOrder(b, a):
		return -1
	default:
		return 0
	}
}
