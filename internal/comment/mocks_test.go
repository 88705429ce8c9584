package comment

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tekmint-dev/HackStack/internal/cache"
	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/model"
)

// --- テスト用モック ---

// mockCommentRepo はインメモリのCommentRepositoryモック。
// 展開ゴルーチンから並行に呼ばれるためミューテックスで保護する。
type mockCommentRepo struct {
	mu                 sync.Mutex
	comments           map[int]*model.Comment
	deleteByStoryCalls []int
	listFreshFn        func(ctx context.Context, ids []int, fetchedAfter time.Time) ([]*model.Comment, error)
}

func newMockCommentRepo() *mockCommentRepo {
	return &mockCommentRepo{comments: make(map[int]*model.Comment)}
}

func (m *mockCommentRepo) ListFreshByIDs(ctx context.Context, ids []int, fetchedAfter time.Time) ([]*model.Comment, error) {
	if m.listFreshFn != nil {
		return m.listFreshFn(ctx, ids, fetchedAfter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Comment
	for _, id := range ids {
		if c, ok := m.comments[id]; ok && c.FetchedAt.After(fetchedAfter) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) Upsert(_ context.Context, comment *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *comment
	m.comments[comment.ID] = &cp
	return nil
}

func (m *mockCommentRepo) DeleteByStory(_ context.Context, storyID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteByStoryCalls = append(m.deleteByStoryCalls, storyID)
	for id, c := range m.comments {
		if c.StoryID == storyID {
			delete(m.comments, id)
		}
	}
	return nil
}

func (m *mockCommentRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// mockGetter はItemGetterのモック。
type mockGetter struct {
	mu        sync.Mutex
	items     map[int]*hn.Item
	calls     map[int]int
	getItemFn func(ctx context.Context, id int) (*hn.Item, error)
}

func newMockGetter() *mockGetter {
	return &mockGetter{
		items: make(map[int]*hn.Item),
		calls: make(map[int]int),
	}
}

func (m *mockGetter) GetItem(ctx context.Context, id int) (*hn.Item, error) {
	m.mu.Lock()
	m.calls[id]++
	m.mu.Unlock()

	if m.getItemFn != nil {
		return m.getItemFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id], nil
}

func (m *mockGetter) callCount(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func (m *mockGetter) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// mockStoryRepo はServiceテスト用の最小StoryRepositoryモック。
type mockStoryRepo struct {
	stories map[int]*model.Story
}

func newMockStoryRepo() *mockStoryRepo {
	return &mockStoryRepo{stories: make(map[int]*model.Story)}
}

func (m *mockStoryRepo) FindByID(_ context.Context, id int) (*model.Story, error) {
	st, ok := m.stories[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *mockStoryRepo) ListByIDs(_ context.Context, _ []int) ([]*model.Story, error) {
	return nil, nil
}

func (m *mockStoryRepo) ListFavorites(_ context.Context) ([]*model.Story, error) {
	return nil, nil
}

func (m *mockStoryRepo) Upsert(_ context.Context, story *model.Story) error {
	cp := *story
	m.stories[story.ID] = &cp
	return nil
}

func (m *mockStoryRepo) UpdateFavorite(_ context.Context, _ int, _ bool) error {
	return nil
}

// nopMetrics は何も記録しないMetricsCollector。
type nopMetrics struct{}

func (nopMetrics) RecordStoryFetchSuccess(string) {}

func (nopMetrics) RecordStoryFetchFailure(string, string) {}

func (nopMetrics) RecordCacheHit(string) {}

func (nopMetrics) RecordCacheMiss(string) {}

func (nopMetrics) RecordCommentsLoaded(int) {}

func (nopMetrics) RecordReplyRetry() {}

func (nopMetrics) RecordHTTPStatus(int) {}

func (nopMetrics) RecordFetchLatency(time.Duration) {}

// nopSanitizer は入力をそのまま返すサニタイザ。
type nopSanitizer struct{}

func (nopSanitizer) Sanitize(rawHTML string) string { return rawHTML }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- 共通フィクスチャ ---

type treeFixture struct {
	builder *TreeBuilder
	repo    *mockCommentRepo
	getter  *mockGetter
	cache   *cache.RemoteCache
}

func defaultTreeConfig() TreeConfig {
	return TreeConfig{
		PageSize:            30,
		MaxComments:         300,
		StoreTTL:            24 * time.Hour,
		LoadMoreInterval:    500 * time.Millisecond,
		FetchMaxConcurrent:  4,
		ExpandMaxConcurrent: 2,
		ExpandMaxRetries:    2,
		ExpandRetryDelay:    time.Second,
	}
}

func newTreeFixture(cfg TreeConfig) *treeFixture {
	var buf bytes.Buffer
	f := &treeFixture{
		repo:   newMockCommentRepo(),
		getter: newMockGetter(),
		cache:  cache.NewRemoteCache(5*time.Minute, 5*time.Minute),
	}
	f.builder = NewTreeBuilder(
		f.repo, f.getter, f.cache,
		nopSanitizer{}, nopMetrics{}, newTestLogger(&buf), cfg,
	)
	// テストではリトライ遅延を待たない
	f.builder.sleep = func(time.Duration) {}
	return f
}

// leafItem は返信を持たないコメントの生レコードを返す。
func leafItem(id int) *hn.Item {
	return &hn.Item{ID: id, Type: "comment", By: "user", Text: "body", Time: 1700000000}
}

// parentItem は返信を持つコメントの生レコードを返す。
func parentItem(id int, kids ...int) *hn.Item {
	it := leafItem(id)
	it.Kids = kids
	return it
}

// freshComment は永続ストアの鮮度判定を通るコメントを返す。
func freshComment(id, storyID int, childIDs ...int) *model.Comment {
	return &model.Comment{
		ID:        id,
		StoryID:   storyID,
		Author:    "user",
		BodyHTML:  "cached",
		ChildIDs:  childIDs,
		FetchedAt: time.Now(),
	}
}

func rootIDs(nodes []*model.CommentNode) []int {
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Comment.ID
	}
	return ids
}
