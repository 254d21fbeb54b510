package feed

import (
	"context"
	"log/slog"

	"github.com/hitoshi/socialfeed/internal/model"
	"github.com/hitoshi/socialfeed/internal/repository"
	"github.com/hitoshi/socialfeed/internal/security"
)

// Assembler は投稿に反応数・閲覧者のブックマークを結合してFeedItemを組み立てる。
// 付随データの取得に失敗しても投稿自体は返す（カウントは0、ブックマークはnil）。
type Assembler struct {
	counts    repository.SocialCountProvider
	bookmarks repository.BookmarkLookup
	sanitizer security.PostSanitizer
	logger    *slog.Logger
}

// NewAssembler はAssemblerを生成する。
func NewAssembler(
	counts repository.SocialCountProvider,
	bookmarks repository.BookmarkLookup,
	sanitizer security.PostSanitizer,
	logger *slog.Logger,
) *Assembler {
	return &Assembler{
		counts:    counts,
		bookmarks: bookmarks,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Assemble はpostsと同じ順序でFeedItemを返す。付随データは一括で取得する。
func (a *Assembler) Assemble(ctx context.Context, viewerID int64, posts []*model.Post) []model.FeedItem {
	items := make([]model.FeedItem, 0, len(posts))
	if len(posts) == 0 {
		return items
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	counts, err := a.counts.Counts(ctx, ids)
	if err != nil {
		a.logger.WarnContext(ctx, "social counts unavailable, defaulting to zero",
			slog.Int64("member_id", viewerID),
			slog.Int("post_count", len(ids)),
			slog.String("error", err.Error()),
		)
		counts = nil
	}

	bookmarks, err := a.bookmarks.BookmarkIDs(ctx, viewerID, ids)
	if err != nil {
		a.logger.WarnContext(ctx, "bookmarks unavailable, defaulting to none",
			slog.Int64("member_id", viewerID),
			slog.Int("post_count", len(ids)),
			slog.String("error", err.Error()),
		)
		bookmarks = nil
	}

	for _, p := range posts {
		var bookmarkID *int64
		if id, ok := bookmarks[p.ID]; ok {
			bookmarkID = &id
		}
		items = append(items, a.project(p, counts[p.ID], bookmarkID))
	}
	return items
}

// project は1件の投稿をFeedItemに変換する。
func (a *Assembler) project(p *model.Post, counts model.SocialCounts, bookmarkID *int64) model.FeedItem {
	tags := make([]string, 0, len(p.HashTags))
	for _, t := range p.HashTags {
		if clean := a.sanitizer.SanitizeTag(t); clean != "" {
			tags = append(tags, clean)
		}
	}

	return model.FeedItem{
		AuthorID:     p.AuthorID,
		AuthorName:   p.AuthorName,
		PostID:       p.ID,
		Content:      a.sanitizer.SanitizeContent(p.Content),
		ImageURLs:    a.sanitizer.SanitizeImageURLs(p.ImageURLs),
		HashTags:     tags,
		LikeCount:    counts.LikeCount,
		CommentCount: counts.CommentCount,
		CreatedAt:    p.CreatedAt,
		BookmarkID:   bookmarkID,
	}
}
