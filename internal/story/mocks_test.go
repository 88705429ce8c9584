package story

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/model"
)

// --- テスト用モック ---

// mockStoryRepo はインメモリのStoryRepositoryモック。
type mockStoryRepo struct {
	stories          map[int]*model.Story
	findByIDFn       func(ctx context.Context, id int) (*model.Story, error)
	listFavoritesFn  func(ctx context.Context) ([]*model.Story, error)
	updateFavoriteFn func(ctx context.Context, id int, favorite bool) error
}

func newMockStoryRepo() *mockStoryRepo {
	return &mockStoryRepo{stories: make(map[int]*model.Story)}
}

func (m *mockStoryRepo) FindByID(ctx context.Context, id int) (*model.Story, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	st, ok := m.stories[id]
	if !ok {
		return nil, nil
	}
	c := *st
	return &c, nil
}

func (m *mockStoryRepo) ListByIDs(_ context.Context, ids []int) ([]*model.Story, error) {
	var out []*model.Story
	for _, id := range ids {
		if st, ok := m.stories[id]; ok {
			c := *st
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockStoryRepo) ListFavorites(ctx context.Context) ([]*model.Story, error) {
	if m.listFavoritesFn != nil {
		return m.listFavoritesFn(ctx)
	}
	var out []*model.Story
	for _, st := range m.stories {
		if st.IsFavorite {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return out, nil
}

func (m *mockStoryRepo) Upsert(_ context.Context, story *model.Story) error {
	c := *story
	m.stories[story.ID] = &c
	return nil
}

func (m *mockStoryRepo) UpdateFavorite(ctx context.Context, id int, favorite bool) error {
	if m.updateFavoriteFn != nil {
		return m.updateFavoriteFn(ctx, id, favorite)
	}
	if st, ok := m.stories[id]; ok {
		st.IsFavorite = favorite
	}
	return nil
}

// mockCommentRepo はインメモリのCommentRepositoryモック。
type mockCommentRepo struct {
	deleteOlderThanFn func(ctx context.Context, threshold time.Time) (int64, error)
}

func (m *mockCommentRepo) ListFreshByIDs(_ context.Context, _ []int, _ time.Time) ([]*model.Comment, error) {
	return nil, nil
}

func (m *mockCommentRepo) Upsert(_ context.Context, _ *model.Comment) error {
	return nil
}

func (m *mockCommentRepo) DeleteByStory(_ context.Context, _ int) error {
	return nil
}

func (m *mockCommentRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, threshold)
	}
	return 0, nil
}

// mockReadStateRepo はインメモリのReadStateRepositoryモック。
type mockReadStateRepo struct {
	records     map[int]time.Time
	insertCalls int
}

func newMockReadStateRepo() *mockReadStateRepo {
	return &mockReadStateRepo{records: make(map[int]time.Time)}
}

func (m *mockReadStateRepo) Exists(_ context.Context, storyID int) (bool, error) {
	_, ok := m.records[storyID]
	return ok, nil
}

func (m *mockReadStateRepo) ListStoryIDs(_ context.Context) ([]int, error) {
	var ids []int
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockReadStateRepo) Insert(_ context.Context, storyID int, markedAt time.Time) error {
	m.insertCalls++
	// 既存レコードは上書きしない（冪等）
	if _, ok := m.records[storyID]; !ok {
		m.records[storyID] = markedAt
	}
	return nil
}

// mockItemSource はItemSourceのモック。
type mockItemSource struct {
	ids       map[model.Category][]int
	items     map[int]*hn.Item
	idListFn  func(ctx context.Context, category model.Category) ([]int, error)
	getItemFn func(ctx context.Context, id int) (*hn.Item, error)
}

func newMockItemSource() *mockItemSource {
	return &mockItemSource{
		ids:   make(map[model.Category][]int),
		items: make(map[int]*hn.Item),
	}
}

func (m *mockItemSource) GetIDList(ctx context.Context, category model.Category) ([]int, error) {
	if m.idListFn != nil {
		return m.idListFn(ctx, category)
	}
	return m.ids[category], nil
}

func (m *mockItemSource) GetItem(ctx context.Context, id int) (*hn.Item, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, id)
	}
	return m.items[id], nil
}

// mockSearchSource はSearchSourceのモック。
type mockSearchSource struct {
	searchFn func(ctx context.Context, query string) ([]hn.SearchHit, error)
}

func (m *mockSearchSource) Search(ctx context.Context, query string) ([]hn.SearchHit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
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
