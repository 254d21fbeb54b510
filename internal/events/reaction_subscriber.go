// Package events はメッセージバス経由のイベント購読を提供する。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ReactionSubject はいいね・コメントの増減を通知するNATSサブジェクト。
const ReactionSubject = "reaction.changed"

// リアクションの種別
const (
	ReactionKindLike    = "like"
	ReactionKindComment = "comment"
)

// 処理結果（メトリクスのラベル）
const (
	ResultEvicted = "evicted"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// evictTimeout は1イベントあたりのキャッシュ削除の上限時間。
const evictTimeout = 5 * time.Second

// ReactionEvent はreaction.changedのペイロード。
type ReactionEvent struct {
	PostID int64  `json:"post_id"`
	Kind   string `json:"kind"`
}

// CountEvicter は投稿のカウントキャッシュを破棄するインターフェース。
// repository.RedisCountCacheが満たす。
type CountEvicter interface {
	Evict(ctx context.Context, postIDs ...int64) error
}

// Observer はイベント処理結果を記録するインターフェース。
type Observer interface {
	RecordReactionEvent(result string)
}

// ReactionSubscriber はリアクションイベントを受信し、該当投稿のカウントキャッシュを破棄する。
type ReactionSubscriber struct {
	evicter  CountEvicter
	logger   *slog.Logger
	observer Observer
}

// NewReactionSubscriber はReactionSubscriberを生成する。observerはnil可。
func NewReactionSubscriber(evicter CountEvicter, logger *slog.Logger, observer Observer) *ReactionSubscriber {
	return &ReactionSubscriber{
		evicter:  evicter,
		logger:   logger,
		observer: observer,
	}
}

// Subscribe はNATS接続にreaction.changedの購読を登録する。
func (s *ReactionSubscriber) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(ReactionSubject, s.HandleMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", ReactionSubject, err)
	}
	return sub, nil
}

// HandleMessage は1件のメッセージを処理する。
// 不正なペイロードはログに記録して破棄する。
func (s *ReactionSubscriber) HandleMessage(msg *nats.Msg) {
	event, err := decodeReactionEvent(msg.Data)
	if err != nil {
		s.logger.Warn("dropping malformed reaction event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		s.record(ResultInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()

	if err := s.evicter.Evict(ctx, event.PostID); err != nil {
		s.logger.Error("failed to evict cached counts",
			slog.Int64("post_id", event.PostID),
			slog.String("kind", event.Kind),
			slog.String("error", err.Error()),
		)
		s.record(ResultError)
		return
	}

	s.logger.Debug("cached counts evicted",
		slog.Int64("post_id", event.PostID),
		slog.String("kind", event.Kind),
	)
	s.record(ResultEvicted)
}

func (s *ReactionSubscriber) record(result string) {
	if s.observer != nil {
		s.observer.RecordReactionEvent(result)
	}
}

// decodeReactionEvent はペイロードを解析し、内容を検証する。
func decodeReactionEvent(data []byte) (ReactionEvent, error) {
	var event ReactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("invalid json: %w", err)
	}
	if event.PostID <= 0 {
		return event, fmt.Errorf("post_id must be positive: %d", event.PostID)
	}
	switch event.Kind {
	case ReactionKindLike, ReactionKindComment:
	default:
		return event, fmt.Errorf("unknown kind: %q", event.Kind)
	}
	return event, nil
}
