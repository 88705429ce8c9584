package comment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tekmint-dev/HackStack/internal/model"
	"github.com/tekmint-dev/HackStack/internal/repository"
	"github.com/tekmint-dev/HackStack/internal/security"
	"github.com/tekmint-dev/HackStack/internal/story"
)

// Service はコメントツリーのサービス。
// 一度に1つのストーリーのツリーを保持し、ストーリーの切り替えでツリーを作り直す。
type Service struct {
	storyRepo repository.StoryRepository
	source    ItemGetter
	sanitizer security.ContentSanitizerService
	builder   *TreeBuilder
	logger    *slog.Logger

	mu             sync.Mutex
	currentStoryID int

	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	storyRepo repository.StoryRepository,
	source ItemGetter,
	sanitizer security.ContentSanitizerService,
	builder *TreeBuilder,
	logger *slog.Logger,
) *Service {
	return &Service{
		storyRepo: storyRepo,
		source:    source,
		sanitizer: sanitizer,
		builder:   builder,
		logger:    logger,
		now:       time.Now,
	}
}

// OpenStory は指定ストーリーのコメントツリーを開き、最初のページを返す。
// ストーリーは永続ストアから解決し、未保存の場合はネットワークから取得して保存する。
// 別ストーリーを開いていた場合、進行中の展開結果は破棄される。
func (s *Service) OpenStory(ctx context.Context, storyID int, forceFresh, loadAll bool) ([]*model.CommentNode, error) {
	st, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		// ストア失敗はネットワーク解決に縮退する
		s.logger.Error("ストーリーの読み込みに失敗しました",
			slog.Int("story_id", storyID),
			slog.String("error", err.Error()),
		)
		st = nil
	}
	if st == nil {
		item, err := s.source.GetItem(ctx, storyID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, model.NewStoryNotFoundError(storyID)
		}
		st = story.StoryFromItem(item, s.sanitizer, s.now())
		if err := s.storyRepo.Upsert(ctx, st); err != nil {
			s.logger.Error("ストーリーの保存に失敗しました",
				slog.Int("story_id", storyID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.builder.Reset(ctx, st, forceFresh, loadAll); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.currentStoryID = storyID
	s.mu.Unlock()

	return s.builder.Snapshot(), nil
}

// CurrentStoryID は現在開いているストーリーのIDを返す。未選択の場合は0。
func (s *Service) CurrentStoryID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStoryID
}

// LoadMore は次のページを取得して現在のツリーを返す。
// ツリーが開かれていない場合はエラー、スロットル・上限による
// 見送りの場合は現在のツリーをそのまま返す。
func (s *Service) LoadMore(ctx context.Context) ([]*model.CommentNode, error) {
	s.mu.Lock()
	opened := s.currentStoryID != 0
	s.mu.Unlock()
	if !opened {
		return nil, model.NewStoryNotSelectedError()
	}

	if err := s.builder.LoadMore(ctx); err != nil {
		return nil, err
	}
	return s.builder.Snapshot(), nil
}

// Expand は指定コメントの返信展開を要求する。
func (s *Service) Expand(ctx context.Context, commentID int) error {
	return s.builder.Expand(ctx, commentID)
}

// SetCollapsed はノードの折りたたみ状態を設定する。
func (s *Service) SetCollapsed(commentID int, collapsed bool) error {
	return s.builder.SetCollapsed(commentID, collapsed)
}

// Tree は現在のツリーのスナップショットを返す。
func (s *Service) Tree() []*model.CommentNode {
	return s.builder.Snapshot()
}

// HasMore は未取得のトップレベルコメントが残っているかを返す。
func (s *Service) HasMore() bool {
	return s.builder.HasMore()
}

// ErrorMessage は直近のページ取得のエラーメッセージを返す。
func (s *Service) ErrorMessage() string {
	return s.builder.ErrorMessage()
}
