// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/socialfeed/internal/middleware"
	"github.com/hitoshi/socialfeed/internal/model"
)

// defaultFeedPageSize はmaxSize省略時のページサイズ。
const defaultFeedPageSize = 20

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// FindList は閲覧者のフィード1ページを組み立てる。
	FindList(ctx context.Context, req model.FeedRequest, viewerID int64) (*model.FeedPage, error)
}

// FeedHandler はフィード取得のHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
	now     func() time.Time
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{
		service: service,
		now:     time.Now,
	}
}

// feedPageResponse はフィード1ページ分のAPIレスポンス。
type feedPageResponse struct {
	FeedList      []feedInfoResponse `json:"feedList"`
	LastPostID    *int64             `json:"lastPostId"`
	LastTimestamp string             `json:"lastTimestamp"`
}

// feedInfoResponse はフィード項目1件のAPIレスポンス。
type feedInfoResponse struct {
	AuthorID     int64    `json:"authorId"`
	AuthorName   string   `json:"authorName"`
	PostID       int64    `json:"postId"`
	Content      string   `json:"content"`
	ImgURLList   []string `json:"imgUrlList"`
	HashTagList  []string `json:"hashTagList"`
	LikesCount   int      `json:"likesCount"`
	CommentCount int      `json:"commentCount"`
	CreatedDate  string   `json:"createdDate"`
	BookmarkID   *int64   `json:"bookmarkId"`
}

// GetFeed は認証済みメンバーのフィードを返す。
// GET /api-v1/feed?maxSize=&timestamp=&lastPostId=
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.MemberIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	req, apiErr := h.parseFeedRequest(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.service.FindList(r.Context(), req, viewerID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteSuccessResponse(w, http.StatusOK, "", toFeedPageResponse(page))
}

// parseFeedRequest はクエリパラメータからFeedRequestを組み立てる。
// 値の範囲検証はサービス層で行い、ここでは形式のみを検証する。
func (h *FeedHandler) parseFeedRequest(r *http.Request) (model.FeedRequest, *model.APIError) {
	q := r.URL.Query()
	req := model.FeedRequest{
		MaxSize:   defaultFeedPageSize,
		Timestamp: h.now(),
	}

	if v := q.Get("maxSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, model.NewInvalidRequestError("maxSizeは整数で指定してください")
		}
		req.MaxSize = n
	}

	if v := q.Get("timestamp"); v != "" {
		ts, err := parseTimestamp(v)
		if err != nil {
			return req, model.NewInvalidRequestError("timestampはRFC3339形式で指定してください")
		}
		req.Timestamp = ts
	}

	if v := q.Get("lastPostId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, model.NewInvalidRequestError("lastPostIdは整数で指定してください")
		}
		req.LastPostID = &id
	}

	return req, nil
}

// localTimestampLayout はタイムゾーンなしの日時。UTCとして解釈する。
const localTimestampLayout = "2006-01-02T15:04:05.999999999"

// parseTimestamp はRFC3339（オフセット付き）を優先し、オフセットなしの日時はUTCとして受け付ける。
func parseTimestamp(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(localTimestampLayout, v, time.UTC)
}

func toFeedPageResponse(page *model.FeedPage) feedPageResponse {
	list := make([]feedInfoResponse, 0, len(page.Items))
	for _, item := range page.Items {
		list = append(list, toFeedInfoResponse(item))
	}
	return feedPageResponse{
		FeedList:      list,
		LastPostID:    page.LastPostID,
		LastTimestamp: formatInstant(page.LastTimestamp),
	}
}

func toFeedInfoResponse(item model.FeedItem) feedInfoResponse {
	return feedInfoResponse{
		AuthorID:     item.AuthorID,
		AuthorName:   item.AuthorName,
		PostID:       item.PostID,
		Content:      item.Content,
		ImgURLList:   nonNil(item.ImageURLs),
		HashTagList:  nonNil(item.HashTags),
		LikesCount:   item.LikeCount,
		CommentCount: item.CommentCount,
		CreatedDate:  formatInstant(item.CreatedAt),
		BookmarkID:   item.BookmarkID,
	}
}

// formatInstant はUTCのRFC3339（ナノ秒精度）文字列に変換する。
func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
