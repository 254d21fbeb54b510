package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/socialfeed/internal/model"
)

// postColumns は投稿本体と付随データ（画像URL・ハッシュタグ）を1行で取得する列リスト。
const postColumns = `
	p.id, p.member_id, m.username, p.content, p.created_at, p.updated_at,
	ARRAY(SELECT i.url FROM post_images i WHERE i.post_id = p.id ORDER BY i.position, i.id) AS image_urls,
	ARRAY(SELECT h.tag FROM post_hashtags h WHERE h.post_id = p.id ORDER BY h.id) AS hashtags`

// PostgresPostRepo はPostgreSQLを使用した投稿の範囲検索。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// ListByAuthors は指定投稿者の投稿をカーソルより古い順に最大limit件取得する。
// 同一時刻の投稿はIDの大きい方を新しいとみなし、beforePostIDより小さいIDのみ返す。
func (r *PostgresPostRepo) ListByAuthors(
	ctx context.Context,
	authorIDs []int64,
	before time.Time,
	beforePostID *int64,
	limit int,
) ([]*model.Post, error) {
	if len(authorIDs) == 0 || limit <= 0 {
		return []*model.Post{}, nil
	}

	query := `SELECT` + postColumns + `
		FROM posts p
		JOIN members m ON m.id = p.member_id
		WHERE p.member_id = ANY($1::bigint[])`

	args := []interface{}{pq.Array(authorIDs), before}
	argIndex := 3

	if beforePostID != nil {
		query += fmt.Sprintf(" AND (p.created_at < $2 OR (p.created_at = $2 AND p.id < $%d))", argIndex)
		args = append(args, *beforePostID)
		argIndex++
	} else {
		query += " AND p.created_at < $2"
	}

	query += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	return r.queryPosts(ctx, query, args...)
}

// ListExcludingAuthors は指定投稿者以外の投稿を windowStart <= created_at < windowEnd の範囲で
// 新しい順に最大limit件取得する。excludedIDsが空の場合は全投稿者が対象となる。
func (r *PostgresPostRepo) ListExcludingAuthors(
	ctx context.Context,
	excludedIDs []int64,
	windowStart, windowEnd time.Time,
	limit int,
) ([]*model.Post, error) {
	if limit <= 0 || !windowStart.Before(windowEnd) {
		return []*model.Post{}, nil
	}

	query := `SELECT` + postColumns + `
		FROM posts p
		JOIN members m ON m.id = p.member_id
		WHERE NOT (p.member_id = ANY($1::bigint[]))
		  AND p.created_at >= $2
		  AND p.created_at < $3
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $4`

	if excludedIDs == nil {
		excludedIDs = []int64{}
	}

	return r.queryPosts(ctx, query, pq.Array(excludedIDs), windowStart, windowEnd, limit)
}

func (r *PostgresPostRepo) queryPosts(ctx context.Context, query string, args ...interface{}) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		post := &model.Post{}
		var imageURLs, hashTags pq.StringArray
		if err := rows.Scan(
			&post.ID, &post.AuthorID, &post.AuthorName, &post.Content,
			&post.CreatedAt, &post.UpdatedAt,
			&imageURLs, &hashTags,
		); err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		post.ImageURLs = []string(imageURLs)
		post.HashTags = []string(hashTags)
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査中にエラーが発生しました: %w", err)
	}

	return posts, nil
}

var _ PostRangeQuery = (*PostgresPostRepo)(nil)
