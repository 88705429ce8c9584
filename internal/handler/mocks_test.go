package handler

import (
	"context"
	"time"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// mockStoryService はStoryServiceInterfaceのモック実装。
type mockStoryService struct {
	selectCategoryFn func(ctx context.Context, category model.Category) ([]*model.Story, error)
	setSortModeFn    func(sortMode model.SortMode) ([]*model.Story, error)
	searchFn         func(ctx context.Context, query string) ([]*model.Story, error)
	toggleFavoriteFn func(ctx context.Context, storyID int) (*model.Story, error)
	markReadFn       func(ctx context.Context, storyID int) error
	refreshFn        func(ctx context.Context) ([]*model.Story, error)

	category     model.Category
	sortMode     model.SortMode
	errorMessage string
}

func (m *mockStoryService) SelectCategory(ctx context.Context, category model.Category) ([]*model.Story, error) {
	if m.selectCategoryFn != nil {
		return m.selectCategoryFn(ctx, category)
	}
	return nil, nil
}

func (m *mockStoryService) SetSortMode(sortMode model.SortMode) ([]*model.Story, error) {
	if m.setSortModeFn != nil {
		return m.setSortModeFn(sortMode)
	}
	return nil, nil
}

func (m *mockStoryService) Search(ctx context.Context, query string) ([]*model.Story, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

func (m *mockStoryService) ToggleFavorite(ctx context.Context, storyID int) (*model.Story, error) {
	if m.toggleFavoriteFn != nil {
		return m.toggleFavoriteFn(ctx, storyID)
	}
	return nil, nil
}

func (m *mockStoryService) MarkRead(ctx context.Context, storyID int) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, storyID)
	}
	return nil
}

func (m *mockStoryService) RefreshCurrentView(ctx context.Context) ([]*model.Story, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx)
	}
	return nil, nil
}

func (m *mockStoryService) Category() model.Category { return m.category }

func (m *mockStoryService) SortMode() model.SortMode { return m.sortMode }

func (m *mockStoryService) ErrorMessage() string { return m.errorMessage }

// mockCommentService はCommentServiceInterfaceのモック実装。
type mockCommentService struct {
	openStoryFn    func(ctx context.Context, storyID int, forceFresh, loadAll bool) ([]*model.CommentNode, error)
	loadMoreFn     func(ctx context.Context) ([]*model.CommentNode, error)
	expandFn       func(ctx context.Context, commentID int) error
	setCollapsedFn func(commentID int, collapsed bool) error

	tree           []*model.CommentNode
	hasMore        bool
	errorMessage   string
	currentStoryID int
}

func (m *mockCommentService) OpenStory(ctx context.Context, storyID int, forceFresh, loadAll bool) ([]*model.CommentNode, error) {
	if m.openStoryFn != nil {
		return m.openStoryFn(ctx, storyID, forceFresh, loadAll)
	}
	return nil, nil
}

func (m *mockCommentService) LoadMore(ctx context.Context) ([]*model.CommentNode, error) {
	if m.loadMoreFn != nil {
		return m.loadMoreFn(ctx)
	}
	return nil, nil
}

func (m *mockCommentService) Expand(ctx context.Context, commentID int) error {
	if m.expandFn != nil {
		return m.expandFn(ctx, commentID)
	}
	return nil
}

func (m *mockCommentService) SetCollapsed(commentID int, collapsed bool) error {
	if m.setCollapsedFn != nil {
		return m.setCollapsedFn(commentID, collapsed)
	}
	return nil
}

func (m *mockCommentService) Tree() []*model.CommentNode { return m.tree }

func (m *mockCommentService) HasMore() bool { return m.hasMore }

func (m *mockCommentService) ErrorMessage() string { return m.errorMessage }

func (m *mockCommentService) CurrentStoryID() int { return m.currentStoryID }

// testStory はテスト用のストーリーを生成するヘルパー。
func testStory(id int, title string) *model.Story {
	return &model.Story{
		ID:           id,
		Title:        title,
		Author:       "alice",
		Score:        100,
		CommentCount: 3,
		PostedAt:     time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		RelativeTime: "2時間前",
	}
}

// testNode はテスト用のコメントノードを生成するヘルパー。
func testNode(id, depth int, childIDs []int) *model.CommentNode {
	return model.NewCommentNode(&model.Comment{
		ID:       id,
		StoryID:  100,
		Author:   "bob",
		BodyText: "本文",
		Depth:    depth,
		ChildIDs: childIDs,
	}, nil)
}
