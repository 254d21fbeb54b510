package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/socialfeed/internal/model"
)

// likeResourcePost はlikes.resource_typeのうち投稿へのいいねを表す。
const likeResourcePost = "POST"

// PostgresSocialRepo はいいね数・コメント数とブックマークを参照する。
type PostgresSocialRepo struct {
	db *sql.DB
}

// NewPostgresSocialRepo はPostgresSocialRepoを生成する。
func NewPostgresSocialRepo(db *sql.DB) *PostgresSocialRepo {
	return &PostgresSocialRepo{db: db}
}

// Counts は投稿ごとの有効ないいね数とコメント数（返信を含む）を一括取得する。
// 存在しない投稿IDは結果に含まれない。
func (r *PostgresSocialRepo) Counts(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
	counts := make(map[int64]model.SocialCounts, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id,
		       (SELECT count(*) FROM likes l
		         WHERE l.resource_type = $2 AND l.resource_id = p.id AND l.is_active = true) AS like_count,
		       (SELECT count(*) FROM comments c WHERE c.post_id = p.id) AS comment_count
		FROM posts p
		WHERE p.id = ANY($1::bigint[])`,
		pq.Array(postIDs), likeResourcePost,
	)
	if err != nil {
		return nil, fmt.Errorf("いいね数・コメント数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var c model.SocialCounts
		if err := rows.Scan(&postID, &c.LikeCount, &c.CommentCount); err != nil {
			return nil, fmt.Errorf("カウント行の読み取りに失敗しました: %w", err)
		}
		counts[postID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カウントの走査中にエラーが発生しました: %w", err)
	}

	return counts, nil
}

// BookmarkIDs は閲覧者が指定投稿に付けたブックマークIDを一括取得する。
func (r *PostgresSocialRepo) BookmarkIDs(ctx context.Context, viewerID int64, postIDs []int64) (map[int64]int64, error) {
	bookmarks := make(map[int64]int64)
	if len(postIDs) == 0 {
		return bookmarks, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT post_id, id FROM bookmarks WHERE member_id = $1 AND post_id = ANY($2::bigint[])`,
		viewerID, pq.Array(postIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマークの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID, bookmarkID int64
		if err := rows.Scan(&postID, &bookmarkID); err != nil {
			return nil, fmt.Errorf("ブックマーク行の読み取りに失敗しました: %w", err)
		}
		bookmarks[postID] = bookmarkID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブックマークの走査中にエラーが発生しました: %w", err)
	}

	return bookmarks, nil
}

var (
	_ SocialCountProvider = (*PostgresSocialRepo)(nil)
	_ BookmarkLookup      = (*PostgresSocialRepo)(nil)
)
