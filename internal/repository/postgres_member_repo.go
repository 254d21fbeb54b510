package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/socialfeed/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	member := &model.Member{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, created_at, updated_at FROM members WHERE id = $1`,
		id,
	).Scan(&member.ID, &member.Username, &member.CreatedAt, &member.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}

	return member, nil
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
