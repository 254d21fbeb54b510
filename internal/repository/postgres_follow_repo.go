package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresFollowRepo はfollowsテーブルを参照するフォローグラフ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// FolloweeIDs は sender_id = memberID のフォロー先ID一覧を返す。
func (r *PostgresFollowRepo) FolloweeIDs(ctx context.Context, memberID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT receiver_id FROM follows WHERE sender_id = $1 ORDER BY receiver_id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロー先の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フォロー先の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロー先の走査中にエラーが発生しました: %w", err)
	}

	return ids, nil
}

var _ FollowGraph = (*PostgresFollowRepo)(nil)
