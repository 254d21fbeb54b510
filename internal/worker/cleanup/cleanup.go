// Package cleanup は無効化されたいいねの自動削除ジョブを提供する。
// 取り消し（is_active = false）から保持期間（デフォルト30日）を超過した
// likes行を日次バッチで物理削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Observer は削除件数を記録するインターフェース。
type Observer interface {
	RecordLikesPurged(count int64)
}

// DefaultRetentionDays は無効ないいねの保持日数のデフォルト値。
const DefaultRetentionDays = 30

const purgeInactiveLikesQuery = `DELETE FROM likes WHERE is_active = false AND updated_at < now() - $1::interval`

// CleanupJob は保持期間を超過した無効ないいねの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	observer      Observer
	RetentionDays int // 無効ないいねの保持日数
}

// NewCleanupJob は新しいCleanupJobを生成する。observerはnil可。
func NewCleanupJob(db Executor, logger *slog.Logger, observer Observer) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		observer:      observer,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は保持期間を超過した無効ないいねを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	result, err := j.db.ExecContext(ctx, purgeInactiveLikesQuery, interval)
	if err != nil {
		j.logger.Error("いいねクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("いいねクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.observer != nil {
		j.observer.RecordLikesPurged(deletedCount)
	}

	j.logger.Info("いいねクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup run failed, retrying next cycle", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Warn("cleanup run failed, retrying next cycle", slog.String("error", err.Error()))
			}
		}
	}
}
