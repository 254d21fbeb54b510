package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/socialfeed/internal/middleware"
	"github.com/hitoshi/socialfeed/internal/model"
)

// --- モック定義 ---

type mockFeedService struct {
	findListFn func(ctx context.Context, req model.FeedRequest, viewerID int64) (*model.FeedPage, error)
	calls      []model.FeedRequest
}

func (m *mockFeedService) FindList(ctx context.Context, req model.FeedRequest, viewerID int64) (*model.FeedPage, error) {
	m.calls = append(m.calls, req)
	if m.findListFn != nil {
		return m.findListFn(ctx, req, viewerID)
	}
	return &model.FeedPage{}, nil
}

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type staticVerifier map[string]int64

func (v staticVerifier) Verify(token string) (int64, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFeedHandler(svc FeedServiceInterface) *FeedHandler {
	h := NewFeedHandler(svc)
	h.now = func() time.Time { return fixedNow }
	return h
}

func withMember(ctx context.Context, id int64) context.Context {
	return middleware.ContextWithMemberID(ctx, id)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
