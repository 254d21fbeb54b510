package feed

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/socialfeed/internal/model"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- MemberRepository ---

type mockMemberRepo struct {
	mu         sync.Mutex
	findByIDFn func(ctx context.Context, id int64) (*model.Member, error)
	calls      int
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id int64) (*model.Member, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.findByIDFn(ctx, id)
}

func membersOf(ids ...int64) *mockMemberRepo {
	return &mockMemberRepo{
		findByIDFn: func(_ context.Context, id int64) (*model.Member, error) {
			if slices.Contains(ids, id) {
				return &model.Member{ID: id, Username: "member"}, nil
			}
			return nil, nil
		},
	}
}

// --- FollowGraph ---

type mockFollowGraph struct {
	mu      sync.Mutex
	follows map[int64][]int64
	err     error
	calls   int
}

func (m *mockFollowGraph) FolloweeIDs(_ context.Context, memberID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.follows[memberID], nil
}

// --- PostRangeQuery ---

type byAuthorsCall struct {
	authorIDs    []int64
	before       time.Time
	beforePostID *int64
	limit        int
}

type excludingCall struct {
	excludedIDs []int64
	windowStart time.Time
	windowEnd   time.Time
	limit       int
}

// memoryPostStore は created_at DESC, id DESC の順序とカーソル条件を再現するインメモリ投稿ストア。
type memoryPostStore struct {
	mu             sync.Mutex
	posts          []*model.Post
	byAuthorsErr   error
	excludingErr   error
	extra          int // limitを超えて余分に返す件数
	byAuthorsCalls []byAuthorsCall
	excludingCalls []excludingCall
}

func (s *memoryPostStore) ListByAuthors(_ context.Context, authorIDs []int64, before time.Time, beforePostID *int64, limit int) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAuthorsCalls = append(s.byAuthorsCalls, byAuthorsCall{authorIDs, before, beforePostID, limit})
	if s.byAuthorsErr != nil {
		return nil, s.byAuthorsErr
	}

	var out []*model.Post
	for _, p := range s.sorted() {
		if !slices.Contains(authorIDs, p.AuthorID) {
			continue
		}
		older := p.CreatedAt.Before(before)
		if beforePostID != nil && p.CreatedAt.Equal(before) && p.ID < *beforePostID {
			older = true
		}
		if older {
			out = append(out, p)
		}
	}
	return s.truncateTo(out, limit), nil
}

func (s *memoryPostStore) ListExcludingAuthors(_ context.Context, excludedIDs []int64, windowStart, windowEnd time.Time, limit int) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excludingCalls = append(s.excludingCalls, excludingCall{excludedIDs, windowStart, windowEnd, limit})
	if s.excludingErr != nil {
		return nil, s.excludingErr
	}

	var out []*model.Post
	for _, p := range s.sorted() {
		if slices.Contains(excludedIDs, p.AuthorID) {
			continue
		}
		if p.CreatedAt.Before(windowStart) || !p.CreatedAt.Before(windowEnd) {
			continue
		}
		out = append(out, p)
	}
	return s.truncateTo(out, limit), nil
}

func (s *memoryPostStore) sorted() []*model.Post {
	posts := slices.Clone(s.posts)
	slices.SortFunc(posts, func(a, b *model.Post) int {
		return -compareCreatedAsc(a, b)
	})
	return posts
}

func (s *memoryPostStore) truncateTo(posts []*model.Post, limit int) []*model.Post {
	n := limit + s.extra
	if len(posts) > n {
		return posts[:n]
	}
	return posts
}

func (s *memoryPostStore) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAuthorsCalls) + len(s.excludingCalls)
}

// --- SocialCountProvider / BookmarkLookup ---

type mockCounts struct {
	countsFn func(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error)
}

func (m *mockCounts) Counts(ctx context.Context, postIDs []int64) (map[int64]model.SocialCounts, error) {
	return m.countsFn(ctx, postIDs)
}

type mockBookmarks struct {
	bookmarkIDsFn func(ctx context.Context, viewerID int64, postIDs []int64) (map[int64]int64, error)
}

func (m *mockBookmarks) BookmarkIDs(ctx context.Context, viewerID int64, postIDs []int64) (map[int64]int64, error) {
	return m.bookmarkIDsFn(ctx, viewerID, postIDs)
}

func noCounts() *mockCounts {
	return &mockCounts{countsFn: func(context.Context, []int64) (map[int64]model.SocialCounts, error) {
		return map[int64]model.SocialCounts{}, nil
	}}
}

func noBookmarks() *mockBookmarks {
	return &mockBookmarks{bookmarkIDsFn: func(context.Context, int64, []int64) (map[int64]int64, error) {
		return map[int64]int64{}, nil
	}}
}

// --- Recorder ---

type recordingRecorder struct {
	mu        sync.Mutex
	results   []string
	sizes     map[string]int
	fallbacks int
}

func (r *recordingRecorder) RecordFeedRequest(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordingRecorder) RecordFeedSlice(slice string, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sizes == nil {
		r.sizes = map[string]int{}
	}
	r.sizes[slice] = size
}

func (r *recordingRecorder) RecordFeedFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

// --- fixtures ---

func post(id, authorID int64, createdAt time.Time) *model.Post {
	return &model.Post{
		ID:         id,
		AuthorID:   authorID,
		AuthorName: "author",
		Content:    "content",
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func int64Ptr(v int64) *int64 { return &v }
