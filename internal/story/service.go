// Package story はストーリー一覧の取得・マージ・ソートを管理するサービスを提供する。
// リモートAPI・リモートキャッシュ・永続ストアの3層を束ね、
// お気に入り・既読といったローカル状態を保全しながら一覧を構築する。
package story

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tekmint-dev/HackStack/internal/cache"
	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/metrics"
	"github.com/tekmint-dev/HackStack/internal/model"
	"github.com/tekmint-dev/HackStack/internal/repository"
	"github.com/tekmint-dev/HackStack/internal/security"
)

// ItemSource はカテゴリ別ID一覧と単一アイテム取得のインターフェース。
// テスト時にモックに差し替え可能。
type ItemSource interface {
	GetIDList(ctx context.Context, category model.Category) ([]int, error)
	GetItem(ctx context.Context, id int) (*hn.Item, error)
}

// SearchSource は全文検索のインターフェース。
type SearchSource interface {
	Search(ctx context.Context, query string) ([]hn.SearchHit, error)
}

// ServiceConfig はServiceの設定パラメータ。
type ServiceConfig struct {
	// HydrateMaxConcurrent はストーリー一括取得の最大並列数。
	HydrateMaxConcurrent int
	// CommentRetentionDays はクリーンアップで保持するコメントの日数。
	CommentRetentionDays int
}

// Service はストーリー一覧のサービス。
// 共有状態（現在のカテゴリ・ソートモード・公開中の一覧）への全ての変更は
// 単一のミューテックスで直列化される。ネットワーク呼び出しはロック外で行い、
// 結果の書き戻しのみをロック内で行う（last-write-wins）。
type Service struct {
	storyRepo     repository.StoryRepository
	commentRepo   repository.CommentRepository
	readStateRepo repository.ReadStateRepository
	source        ItemSource
	searcher      SearchSource
	remoteCache   *cache.RemoteCache
	sanitizer     security.ContentSanitizerService
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	config        ServiceConfig

	mu            sync.Mutex
	category      model.Category
	sortMode      model.SortMode
	stories       []*model.Story
	searchQuery   string
	errorMessage  string
	searchCancel  context.CancelFunc
	searchGen     int
	prevCategory  model.Category
	prevSortMode  model.SortMode
	prevStories   []*model.Story
	lastCleanupAt time.Time

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// 初期状態はtopカテゴリ・defaultソート。
func NewService(
	storyRepo repository.StoryRepository,
	commentRepo repository.CommentRepository,
	readStateRepo repository.ReadStateRepository,
	source ItemSource,
	searcher SearchSource,
	remoteCache *cache.RemoteCache,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	return &Service{
		storyRepo:     storyRepo,
		commentRepo:   commentRepo,
		readStateRepo: readStateRepo,
		source:        source,
		searcher:      searcher,
		remoteCache:   remoteCache,
		sanitizer:     sanitizer,
		metrics:       collector,
		logger:        logger,
		config:        cfg,
		category:      model.CategoryTop,
		sortMode:      model.SortDefault,
		now:           time.Now,
	}
}

// Category は現在のカテゴリを返す。
func (s *Service) Category() model.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// SortMode は現在のソートモードを返す。
func (s *Service) SortMode() model.SortMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortMode
}

// ErrorMessage は直近の操作のエラーメッセージを返す。正常時は空文字列。
// 空一覧とエラー状態を区別するためのフィールドで、成功した操作がクリアする。
func (s *Service) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Stories は公開中の一覧のスナップショットを返す。
func (s *Service) Stories() []*model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Story, len(s.stories))
	copy(out, s.stories)
	return out
}

// SelectCategory はカテゴリを切り替え、カテゴリ固有のデフォルトソートを適用して再取得する。
// searchカテゴリへの切り替えは検索操作のみが一覧を供給するため再取得しない。
func (s *Service) SelectCategory(ctx context.Context, category model.Category) ([]*model.Story, error) {
	if !model.ValidCategories[category] {
		return nil, model.NewInvalidCategoryError(string(category))
	}

	s.mu.Lock()
	s.category = category
	s.sortMode = model.DefaultSortFor(category)
	if category == model.CategorySearch {
		result := sortStories(s.stories, s.sortMode, s.category)
		s.stories = result
		s.mu.Unlock()
		return result, nil
	}
	s.mu.Unlock()

	return s.Fetch(ctx, false)
}

// SetSortMode はソートモードを変更し、現在の一覧に再適用する。
func (s *Service) SetSortMode(sortMode model.SortMode) ([]*model.Story, error) {
	if !model.ValidSortModes[sortMode] {
		return nil, model.NewInvalidSortError(string(sortMode))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sortMode = sortMode
	s.stories = sortStories(s.stories, s.sortMode, s.category)
	return s.stories, nil
}

// Fetch は現在のカテゴリのストーリー一覧を取得して公開する。
// forceFreshはリモートキャッシュとTTLを無視して必ずネットワークから取得する。
// favoritesカテゴリは永続ストアのみから解決され、ネットワークにもキャッシュにも触れない。
func (s *Service) Fetch(ctx context.Context, forceFresh bool) ([]*model.Story, error) {
	s.mu.Lock()
	category := s.category
	s.mu.Unlock()

	if category == model.CategoryFavorites {
		return s.fetchFavorites(ctx)
	}
	if category == model.CategorySearch {
		// searchは検索操作のみが供給するため現在の一覧をそのまま返す
		return s.Stories(), nil
	}

	if !forceFresh {
		if cached, ok := s.remoteCache.GetStories(category); ok {
			s.metrics.RecordCacheHit(metrics.CacheLayerRemoteStory)
			merged := s.overlayLocalState(ctx, cached)
			return s.publish(merged, ""), nil
		}
		s.metrics.RecordCacheMiss(metrics.CacheLayerRemoteStory)
	}

	ids, err := s.source.GetIDList(ctx, category)
	if err != nil {
		return nil, s.fetchFailed(category, err)
	}

	start := s.now()
	items, err := hn.HydrateItems(ctx, s.source, s.logger, ids, s.config.HydrateMaxConcurrent)
	if err != nil {
		return nil, s.fetchFailed(category, err)
	}
	s.metrics.RecordFetchLatency(time.Since(start))

	merged := s.mergeStories(ctx, items)

	// 新しいAPI結果に含まれないお気に入りは末尾に付加し、一覧から暗黙に消さない
	merged = s.appendRetainedFavorites(ctx, merged)

	s.remoteCache.PutStories(category, merged)
	s.metrics.RecordStoryFetchSuccess(string(category))

	return s.publish(merged, ""), nil
}

// fetchFavorites は永続ストアからお気に入り一覧を取得する。
// ストア失敗時はログに記録して空一覧に縮退する。
func (s *Service) fetchFavorites(ctx context.Context) ([]*model.Story, error) {
	stories, err := s.storyRepo.ListFavorites(ctx)
	if err != nil {
		s.logger.Error("お気に入り一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return s.publish([]*model.Story{}, ""), nil
	}

	readSet := s.loadReadSet(ctx)
	for _, st := range stories {
		st.IsRead = readSet[st.ID]
	}

	return s.publish(stories, ""), nil
}

// mergeStories はフェッチ結果を永続ストアの既存状態とマージして書き戻す。
// isFavoriteはリフレッシュで上書きされない唯一のフィールドであり、
// isReadはReadStateレコードの存在から導出する。入力のAPI提示順を保持する。
func (s *Service) mergeStories(ctx context.Context, items []*hn.Item) []*model.Story {
	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	existing := make(map[int]*model.Story)
	if stored, err := s.storyRepo.ListByIDs(ctx, ids); err != nil {
		s.logger.Error("既存ストーリーの読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
	} else {
		for _, st := range stored {
			existing[st.ID] = st
		}
	}

	readSet := s.loadReadSet(ctx)
	now := s.now()

	merged := make([]*model.Story, 0, len(items))
	for _, it := range items {
		st := StoryFromItem(it, s.sanitizer, now)
		if ex, ok := existing[it.ID]; ok {
			st.IsFavorite = ex.IsFavorite
			st.CreatedAt = ex.CreatedAt
		}
		st.IsRead = readSet[it.ID]

		if err := s.storyRepo.Upsert(ctx, st); err != nil {
			// 永続化失敗はログに記録し、インメモリの一覧は継続する
			s.logger.Error("ストーリーの保存に失敗しました",
				slog.Int("story_id", it.ID),
				slog.String("error", err.Error()),
			)
		}
		merged = append(merged, st)
	}

	return merged
}

// appendRetainedFavorites は新しい結果に含まれないお気に入りを末尾に付加する。
func (s *Service) appendRetainedFavorites(ctx context.Context, merged []*model.Story) []*model.Story {
	favorites, err := s.storyRepo.ListFavorites(ctx)
	if err != nil {
		s.logger.Error("お気に入り一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return merged
	}

	present := make(map[int]bool, len(merged))
	for _, st := range merged {
		present[st.ID] = true
	}

	readSet := s.loadReadSet(ctx)
	for _, fav := range favorites {
		if present[fav.ID] {
			continue
		}
		fav.IsRead = readSet[fav.ID]
		merged = append(merged, fav)
	}

	return merged
}

// overlayLocalState はキャッシュ済み一覧にストアの最新のお気に入り・既読状態を重ねる。
// キャッシュエントリ自体は変更せず、コピーに対して適用する。
func (s *Service) overlayLocalState(ctx context.Context, cached []*model.Story) []*model.Story {
	ids := make([]int, 0, len(cached))
	for _, st := range cached {
		ids = append(ids, st.ID)
	}

	favorite := make(map[int]bool)
	if stored, err := s.storyRepo.ListByIDs(ctx, ids); err == nil {
		for _, st := range stored {
			favorite[st.ID] = st.IsFavorite
		}
	}
	readSet := s.loadReadSet(ctx)

	out := make([]*model.Story, len(cached))
	for i, st := range cached {
		c := *st
		c.IsFavorite = favorite[st.ID]
		c.IsRead = readSet[st.ID]
		out[i] = &c
	}

	return out
}

// loadReadSet は既読ストーリーIDのセットを返す。ストア失敗時は空セットに縮退する。
func (s *Service) loadReadSet(ctx context.Context) map[int]bool {
	readSet := make(map[int]bool)
	ids, err := s.readStateRepo.ListStoryIDs(ctx)
	if err != nil {
		s.logger.Error("既読状態の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return readSet
	}
	for _, id := range ids {
		readSet[id] = true
	}
	return readSet
}

// publish はソートを適用した一覧を公開状態に書き込み、スナップショットを返す。
func (s *Service) publish(stories []*model.Story, errorMessage string) []*model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stories = sortStories(stories, s.sortMode, s.category)
	s.errorMessage = errorMessage
	return s.stories
}

// fetchFailed はフェッチ失敗を記録し、エラーメッセージを公開状態に設定する。
// キャンセルはユーザー可視のエラーとして扱わず、公開中の一覧もそのまま残す。
func (s *Service) fetchFailed(category model.Category, err error) error {
	if model.IsCancellation(err) {
		return err
	}

	s.metrics.RecordStoryFetchFailure(string(category), err.Error())
	s.logger.Error("ストーリー一覧の取得に失敗しました",
		slog.String("category", string(category)),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	s.errorMessage = err.Error()
	s.mu.Unlock()

	return err
}

// Search はクエリでストーリーを全文検索し、結果をsearchカテゴリとして公開する。
// 空クエリは検索前の一覧を復元する。新しい検索は実行中の検索をキャンセルし、
// キャンセルされた側の結果と失敗は一切公開されない（完了する更新は常に1つ）。
func (s *Service) Search(ctx context.Context, query string) ([]*model.Story, error) {
	s.mu.Lock()
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}

	if strings.TrimSpace(query) == "" {
		// 空クエリ: 検索前の一覧を現在のソートで復元する
		s.searchQuery = ""
		if s.category == model.CategorySearch {
			s.category = s.prevCategory
			s.sortMode = s.prevSortMode
			s.stories = sortStories(s.prevStories, s.sortMode, s.category)
		} else {
			s.stories = sortStories(s.stories, s.sortMode, s.category)
		}
		result := s.stories
		s.mu.Unlock()
		return result, nil
	}

	s.searchQuery = query
	sctx, cancel := context.WithCancel(ctx)
	s.searchCancel = cancel
	s.searchGen++
	gen := s.searchGen
	s.mu.Unlock()

	hits, err := s.searcher.Search(sctx, query)
	if err != nil {
		return nil, s.searchFailed(query, err)
	}

	ids := make([]int, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}

	items, err := hn.HydrateItems(sctx, s.source, s.logger, ids, s.config.HydrateMaxConcurrent)
	if err != nil {
		return nil, s.searchFailed(query, err)
	}

	merged := s.mergeStories(sctx, items)
	result := sortSearchResults(merged)

	s.mu.Lock()
	defer s.mu.Unlock()

	// 後続の検索に追い越された結果は公開しない
	if gen != s.searchGen {
		return nil, nil
	}
	s.searchCancel = nil

	if s.category != model.CategorySearch {
		s.prevCategory = s.category
		s.prevSortMode = s.sortMode
		s.prevStories = s.stories
	}
	s.category = model.CategorySearch
	s.sortMode = model.SortDefault
	s.stories = result
	s.errorMessage = ""

	return result, nil
}

// searchFailed は検索失敗を処理する。キャンセルは飲み込み、エラーとして返さない。
func (s *Service) searchFailed(query string, err error) error {
	if model.IsCancellation(err) {
		return nil
	}

	s.logger.Error("検索に失敗しました",
		slog.String("query", query),
		slog.String("error", err.Error()),
	)

	s.mu.Lock()
	s.errorMessage = err.Error()
	s.mu.Unlock()

	return err
}

// ToggleFavorite はストーリーのお気に入りフラグを反転して永続化する。
// favoritesビューを表示中の場合はビューを再読み込みした一覧を返す。
func (s *Service) ToggleFavorite(ctx context.Context, storyID int) (*model.Story, error) {
	st, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, model.NewStoryNotFoundError(storyID)
	}

	st.IsFavorite = !st.IsFavorite
	if err := s.storyRepo.UpdateFavorite(ctx, storyID, st.IsFavorite); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, cur := range s.stories {
		if cur.ID == storyID {
			cur.IsFavorite = st.IsFavorite
			break
		}
	}
	reload := s.category == model.CategoryFavorites
	s.mu.Unlock()

	if reload {
		if _, err := s.Fetch(ctx, false); err != nil {
			return nil, err
		}
	}

	return st, nil
}

// MarkRead はストーリーを既読にする。冪等で、既にReadStateレコードが
// 存在する場合は何もしない（marked_atは最初の既読時刻のまま）。
func (s *Service) MarkRead(ctx context.Context, storyID int) error {
	err := s.readStateRepo.Insert(ctx, storyID, s.now())
	if err != nil {
		s.logger.Error("既読状態の保存に失敗しました",
			slog.Int("story_id", storyID),
			slog.String("error", err.Error()),
		)
	}

	// 永続化の成否に関わらずインメモリの一覧は既読にする
	s.mu.Lock()
	for _, cur := range s.stories {
		if cur.ID == storyID {
			cur.IsRead = true
			break
		}
	}
	s.mu.Unlock()

	return err
}

// RefreshCurrentView は検索テキストをクリアし、現在のカテゴリのキャッシュを
// 無効化して強制的に再取得する。searchカテゴリ表示中は検索前のカテゴリに戻す。
func (s *Service) RefreshCurrentView(ctx context.Context) ([]*model.Story, error) {
	s.mu.Lock()
	s.searchQuery = ""
	if s.category == model.CategorySearch {
		s.category = s.prevCategory
		s.sortMode = s.prevSortMode
	}
	category := s.category
	s.mu.Unlock()

	s.remoteCache.InvalidateStories(category)
	return s.Fetch(ctx, true)
}

// Cleanup は保持期間を超過したコメントを永続ストアから削除する。
// 1暦日に最大1回のみ実行され、同日中の再呼び出しは何もしない。
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	if !s.lastCleanupAt.IsZero() &&
		s.lastCleanupAt.Year() == now.Year() && s.lastCleanupAt.YearDay() == now.YearDay() {
		s.mu.Unlock()
		return 0, nil
	}
	s.lastCleanupAt = now
	s.mu.Unlock()

	threshold := now.AddDate(0, 0, -s.config.CommentRetentionDays)
	deleted, err := s.commentRepo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		s.logger.Error("コメントクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	s.logger.Info("コメントクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", s.config.CommentRetentionDays),
	)

	return deleted, nil
}
