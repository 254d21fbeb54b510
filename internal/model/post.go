package model

import "time"

// Post はメンバーが投稿した記事を表す。
// ImageURLs と HashTags は post_images / post_hashtags から取得した付随データ。
type Post struct {
	ID         int64
	AuthorID   int64
	AuthorName string
	Content    string
	ImageURLs  []string
	HashTags   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SocialCounts は投稿のいいね数とコメント数のスナップショット。
type SocialCounts struct {
	LikeCount    int
	CommentCount int
}

// PostOrder は投稿の並び順（created_at DESC, id DESC）でaがbより新しい場合にtrueを返す。
// 同一時刻の投稿はIDが大きい方を新しいとみなす。
func PostOrder(a, b *Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
