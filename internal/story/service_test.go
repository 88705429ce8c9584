package story

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tekmint-dev/HackStack/internal/cache"
	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/model"
)

type serviceFixture struct {
	svc       *Service
	storyRepo *mockStoryRepo
	comments  *mockCommentRepo
	reads     *mockReadStateRepo
	source    *mockItemSource
	searcher  *mockSearchSource
	cache     *cache.RemoteCache
}

func newServiceFixture() *serviceFixture {
	var buf bytes.Buffer
	f := &serviceFixture{
		storyRepo: newMockStoryRepo(),
		comments:  &mockCommentRepo{},
		reads:     newMockReadStateRepo(),
		source:    newMockItemSource(),
		searcher:  &mockSearchSource{},
		cache:     cache.NewRemoteCache(5*time.Minute, 5*time.Minute),
	}
	f.svc = NewService(
		f.storyRepo, f.comments, f.reads,
		f.source, f.searcher, f.cache,
		nopSanitizer{}, nopMetrics{}, newTestLogger(&buf),
		ServiceConfig{HydrateMaxConcurrent: 4, CommentRetentionDays: 7},
	)
	return f
}

func storyItem(id, score int, epoch int64) *hn.Item {
	return &hn.Item{
		ID:    id,
		Type:  "story",
		Title: "story",
		Score: score,
		Time:  epoch,
	}
}

func TestService_Fetch_MergesAPIOrder(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{3, 1, 2}
	f.source.items[1] = storyItem(1, 10, 1700000000)
	f.source.items[2] = storyItem(2, 20, 1700000100)
	f.source.items[3] = storyItem(3, 30, 1700000200)

	stories, err := f.svc.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if len(stories) != 3 {
		t.Fatalf("件数 = %d, want 3", len(stories))
	}
	// top + default はAPI提示順をそのまま使う
	for i, want := range []int{3, 1, 2} {
		if stories[i].ID != want {
			t.Errorf("stories[%d].ID = %d, want %d", i, stories[i].ID, want)
		}
	}

	// 永続ストアにも書き戻されている
	if _, ok := f.storyRepo.stories[3]; !ok {
		t.Error("フェッチ結果が永続ストアに保存されていない")
	}
}

// TestService_Fetch_PreservesFavoriteAcrossRefresh はお気に入りフラグが
// 強制リフレッシュのマージで上書きされないことを検証する。
func TestService_Fetch_PreservesFavoriteAcrossRefresh(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if _, err := f.svc.ToggleFavorite(context.Background(), 1); err != nil {
		t.Fatalf("ToggleFavorite がエラーを返した: %v", err)
	}

	// スコアが変わった新しいAPI結果で強制リフレッシュ
	f.source.items[1] = storyItem(1, 99, 1700000000)
	stories, err := f.svc.Fetch(context.Background(), true)
	if err != nil {
		t.Fatalf("Fetch(forceFresh) がエラーを返した: %v", err)
	}

	if !stories[0].IsFavorite {
		t.Error("お気に入りフラグがリフレッシュで失われた")
	}
	if stories[0].Score != 99 {
		t.Errorf("Score = %d, want 99 (他フィールドは最新値で更新されるべき)", stories[0].Score)
	}
}

// TestService_Fetch_RetainsFavoritesAbsentFromAPI は新しいAPI結果に含まれない
// お気に入りストーリーが一覧末尾に保持されることを検証する。
func TestService_Fetch_RetainsFavoritesAbsentFromAPI(t *testing.T) {
	f := newServiceFixture()
	f.storyRepo.stories[100] = &model.Story{ID: 100, Title: "old favorite", IsFavorite: true}
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)

	stories, err := f.svc.Fetch(context.Background(), true)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if len(stories) != 2 {
		t.Fatalf("件数 = %d, want 2 (API結果1件 + 保持お気に入り1件)", len(stories))
	}
	if stories[1].ID != 100 {
		t.Errorf("末尾のID = %d, want 100 (保持されたお気に入り)", stories[1].ID)
	}
}

func TestService_Fetch_UsesRemoteCacheWithinTTL(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)

	var calls int
	f.source.idListFn = func(ctx context.Context, category model.Category) ([]int, error) {
		calls++
		return f.source.ids[category], nil
	}

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("1回目のFetch がエラーを返した: %v", err)
	}
	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("2回目のFetch がエラーを返した: %v", err)
	}

	if calls != 1 {
		t.Errorf("ID一覧の取得回数 = %d, want 1 (TTL内はキャッシュから返すべき)", calls)
	}

	// forceFreshはキャッシュを無視する
	if _, err := f.svc.Fetch(context.Background(), true); err != nil {
		t.Fatalf("Fetch(forceFresh) がエラーを返した: %v", err)
	}
	if calls != 2 {
		t.Errorf("ID一覧の取得回数 = %d, want 2 (forceFreshはネットワークに行くべき)", calls)
	}
}

func TestService_Fetch_NetworkFailureKeepsPriorList(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	f.source.idListFn = func(ctx context.Context, category model.Category) ([]int, error) {
		return nil, model.NewNetworkFailureError("connection refused")
	}

	if _, err := f.svc.Fetch(context.Background(), true); err == nil {
		t.Fatal("ネットワーク失敗はエラーを返すべき")
	}

	if f.svc.ErrorMessage() == "" {
		t.Error("失敗時はエラーメッセージが設定されるべき")
	}
	if got := f.svc.Stories(); len(got) != 1 {
		t.Errorf("失敗後も直前の一覧が保持されるべき: 件数 = %d, want 1", len(got))
	}
}

func TestService_FetchFavorites_StoreOnly(t *testing.T) {
	f := newServiceFixture()
	f.storyRepo.stories[1] = &model.Story{ID: 1, IsFavorite: true, PostedAt: time.Unix(100, 0)}
	f.storyRepo.stories[2] = &model.Story{ID: 2, IsFavorite: false}
	f.storyRepo.stories[3] = &model.Story{ID: 3, IsFavorite: true, PostedAt: time.Unix(200, 0)}

	f.source.idListFn = func(ctx context.Context, category model.Category) ([]int, error) {
		t.Error("favoritesカテゴリはネットワークに触れてはならない")
		return nil, nil
	}

	stories, err := f.svc.SelectCategory(context.Background(), model.CategoryFavorites)
	if err != nil {
		t.Fatalf("SelectCategory がエラーを返した: %v", err)
	}

	if len(stories) != 2 {
		t.Fatalf("件数 = %d, want 2", len(stories))
	}
	// 投稿日時降順
	if stories[0].ID != 3 || stories[1].ID != 1 {
		t.Errorf("順序 = [%d %d], want [3 1]", stories[0].ID, stories[1].ID)
	}
}

// TestService_FetchFavorites_DegradesToEmptyOnStoreFailure はストア失敗時に
// エラーではなく空一覧に縮退することを検証する。
func TestService_FetchFavorites_DegradesToEmptyOnStoreFailure(t *testing.T) {
	f := newServiceFixture()
	f.storyRepo.listFavoritesFn = func(ctx context.Context) ([]*model.Story, error) {
		return nil, errors.New("db down")
	}

	stories, err := f.svc.SelectCategory(context.Background(), model.CategoryFavorites)
	if err != nil {
		t.Fatalf("ストア失敗はエラーとして伝播すべきでない: %v", err)
	}
	if len(stories) != 0 {
		t.Errorf("件数 = %d, want 0 (空一覧への縮退)", len(stories))
	}
}

func TestService_SelectCategory_AppliesDefaultSort(t *testing.T) {
	tests := []struct {
		category model.Category
		want     model.SortMode
	}{
		{model.CategoryTop, model.SortDefault},
		{model.CategoryBest, model.SortPoints},
		{model.CategoryNew, model.SortDate},
		{model.CategoryJob, model.SortDate},
		{model.CategoryShow, model.SortDefault},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			f := newServiceFixture()
			if _, err := f.svc.SelectCategory(context.Background(), tt.category); err != nil {
				t.Fatalf("SelectCategory がエラーを返した: %v", err)
			}
			if got := f.svc.SortMode(); got != tt.want {
				t.Errorf("SortMode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestService_SelectCategory_InvalidCategory(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.SelectCategory(context.Background(), model.Category("bogus"))
	if err == nil {
		t.Fatal("無効なカテゴリはエラーを返すべき")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCategory {
		t.Errorf("err = %v, want INVALID_CATEGORY", err)
	}
}

// TestService_SortScenario は仕様のソートシナリオを検証する:
// [{id:1,score:50,ts:100},{id:2,score:90,ts:50}] がpointsで[2,1]、dateで[1,2]。
func TestService_SortScenario(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1, 2}
	f.source.items[1] = storyItem(1, 50, 100)
	f.source.items[2] = storyItem(2, 90, 50)

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	byPoints, err := f.svc.SetSortMode(model.SortPoints)
	if err != nil {
		t.Fatalf("SetSortMode がエラーを返した: %v", err)
	}
	if byPoints[0].ID != 2 || byPoints[1].ID != 1 {
		t.Errorf("points順 = [%d %d], want [2 1]", byPoints[0].ID, byPoints[1].ID)
	}

	byDate, err := f.svc.SetSortMode(model.SortDate)
	if err != nil {
		t.Fatalf("SetSortMode がエラーを返した: %v", err)
	}
	if byDate[0].ID != 1 || byDate[1].ID != 2 {
		t.Errorf("date順 = [%d %d], want [1 2]", byDate[0].ID, byDate[1].ID)
	}
}

// TestService_MarkRead_Idempotent はMarkReadを2回呼んでもReadStateレコードが
// 1件しか作られないことを検証する。
func TestService_MarkRead_Idempotent(t *testing.T) {
	f := newServiceFixture()
	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return first }

	if err := f.svc.MarkRead(context.Background(), 42); err != nil {
		t.Fatalf("MarkRead がエラーを返した: %v", err)
	}
	f.svc.now = func() time.Time { return first.Add(time.Hour) }
	if err := f.svc.MarkRead(context.Background(), 42); err != nil {
		t.Fatalf("2回目のMarkRead がエラーを返した: %v", err)
	}

	if len(f.reads.records) != 1 {
		t.Fatalf("レコード数 = %d, want 1", len(f.reads.records))
	}
	if got := f.reads.records[42]; !got.Equal(first) {
		t.Errorf("marked_at = %v, want 最初の既読時刻 %v", got, first)
	}
}

func TestService_ToggleFavorite_NotFound(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.ToggleFavorite(context.Background(), 999)
	if err == nil {
		t.Fatal("存在しないストーリーはエラーを返すべき")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeStoryNotFound {
		t.Errorf("err = %v, want STORY_NOT_FOUND", err)
	}
}

// TestService_ToggleFavorite_ReloadsFavoritesView はfavoritesビュー表示中の
// トグルがビューを再読み込みすることを検証する。
func TestService_ToggleFavorite_ReloadsFavoritesView(t *testing.T) {
	f := newServiceFixture()
	f.storyRepo.stories[1] = &model.Story{ID: 1, IsFavorite: true, PostedAt: time.Unix(100, 0)}
	f.storyRepo.stories[2] = &model.Story{ID: 2, IsFavorite: true, PostedAt: time.Unix(50, 0)}

	if _, err := f.svc.SelectCategory(context.Background(), model.CategoryFavorites); err != nil {
		t.Fatalf("SelectCategory がエラーを返した: %v", err)
	}

	if _, err := f.svc.ToggleFavorite(context.Background(), 1); err != nil {
		t.Fatalf("ToggleFavorite がエラーを返した: %v", err)
	}

	stories := f.svc.Stories()
	if len(stories) != 1 || stories[0].ID != 2 {
		t.Errorf("favoritesビュー = %+v, want ID 2 の1件のみ", stories)
	}
}

// TestService_Search_SupersededSearchIsSwallowed は連続した検索で
// 先行する検索がキャンセルされ、後発の結果だけが公開されることを検証する。
func TestService_Search_SupersededSearchIsSwallowed(t *testing.T) {
	f := newServiceFixture()
	f.source.items[1] = storyItem(1, 10, 1700000000)
	f.source.items[2] = storyItem(2, 20, 1700000100)

	firstStarted := make(chan struct{})
	f.searcher.searchFn = func(ctx context.Context, query string) ([]hn.SearchHit, error) {
		if query == "a" {
			close(firstStarted)
			// 後発の検索によるキャンセルを待つ
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []hn.SearchHit{{ID: 2}}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.svc.Search(context.Background(), "a")
	}()

	<-firstStarted
	second, err := f.svc.Search(context.Background(), "ab")
	wg.Wait()

	if err != nil {
		t.Fatalf("後発の検索がエラーを返した: %v", err)
	}
	if firstErr != nil {
		t.Errorf("キャンセルされた検索はエラーを表面化すべきでない: %v", firstErr)
	}
	if len(second) != 1 || second[0].ID != 2 {
		t.Errorf("公開された結果 = %+v, want ID 2 の1件", second)
	}
	if got := f.svc.Category(); got != model.CategorySearch {
		t.Errorf("Category = %q, want search", got)
	}
	if f.svc.ErrorMessage() != "" {
		t.Errorf("エラーメッセージ = %q, want 空", f.svc.ErrorMessage())
	}
}

// TestService_Search_SortsByScoreThenComments は検索結果がスコア降順・
// 同点コメント数降順で提示されることを検証する。
func TestService_Search_SortsByScoreThenComments(t *testing.T) {
	f := newServiceFixture()
	f.source.items[1] = &hn.Item{ID: 1, Type: "story", Score: 50, Descendants: 10, Time: 100}
	f.source.items[2] = &hn.Item{ID: 2, Type: "story", Score: 90, Descendants: 5, Time: 200}
	f.source.items[3] = &hn.Item{ID: 3, Type: "story", Score: 50, Descendants: 30, Time: 300}

	f.searcher.searchFn = func(ctx context.Context, query string) ([]hn.SearchHit, error) {
		return []hn.SearchHit{{ID: 1}, {ID: 2}, {ID: 3}}, nil
	}

	result, err := f.svc.Search(context.Background(), "go")
	if err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}

	want := []int{2, 3, 1}
	if len(result) != 3 {
		t.Fatalf("件数 = %d, want 3", len(result))
	}
	for i, id := range want {
		if result[i].ID != id {
			t.Errorf("result[%d].ID = %d, want %d", i, result[i].ID, id)
		}
	}
}

// TestService_Search_EmptyQueryRestoresPreviousList は空クエリが検索前の
// 一覧とカテゴリを復元することを検証する。
func TestService_Search_EmptyQueryRestoresPreviousList(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)
	f.source.items[2] = storyItem(2, 20, 1700000100)
	f.searcher.searchFn = func(ctx context.Context, query string) ([]hn.SearchHit, error) {
		return []hn.SearchHit{{ID: 2}}, nil
	}

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if _, err := f.svc.Search(context.Background(), "go"); err != nil {
		t.Fatalf("Search がエラーを返した: %v", err)
	}

	restored, err := f.svc.Search(context.Background(), "")
	if err != nil {
		t.Fatalf("空クエリの検索がエラーを返した: %v", err)
	}

	if got := f.svc.Category(); got != model.CategoryTop {
		t.Errorf("Category = %q, want top (検索前のカテゴリに復帰)", got)
	}
	if len(restored) != 1 || restored[0].ID != 1 {
		t.Errorf("復元された一覧 = %+v, want ID 1 の1件", restored)
	}
}

func TestService_RefreshCurrentView_InvalidatesCache(t *testing.T) {
	f := newServiceFixture()
	f.source.ids[model.CategoryTop] = []int{1}
	f.source.items[1] = storyItem(1, 10, 1700000000)

	var calls int
	f.source.idListFn = func(ctx context.Context, category model.Category) ([]int, error) {
		calls++
		return f.source.ids[category], nil
	}

	if _, err := f.svc.Fetch(context.Background(), false); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if _, err := f.svc.RefreshCurrentView(context.Background()); err != nil {
		t.Fatalf("RefreshCurrentView がエラーを返した: %v", err)
	}

	if calls != 2 {
		t.Errorf("ID一覧の取得回数 = %d, want 2 (リフレッシュはキャッシュを無効化すべき)", calls)
	}
	if _, ok := f.cache.GetStories(model.CategoryTop); !ok {
		t.Error("リフレッシュ後は新しい結果がキャッシュに入っているべき")
	}
}

// TestService_Cleanup_OncePerCalendarDay はクリーンアップが1暦日に
// 1回しか実行されないことを検証する。
func TestService_Cleanup_OncePerCalendarDay(t *testing.T) {
	f := newServiceFixture()

	var calls int
	var gotThreshold time.Time
	f.comments.deleteOlderThanFn = func(ctx context.Context, threshold time.Time) (int64, error) {
		calls++
		gotThreshold = threshold
		return 5, nil
	}

	day1 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return day1 }

	deleted, err := f.svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup がエラーを返した: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}
	wantThreshold := day1.AddDate(0, 0, -7)
	if !gotThreshold.Equal(wantThreshold) {
		t.Errorf("threshold = %v, want %v (7日前)", gotThreshold, wantThreshold)
	}

	// 同日中の再呼び出しは何もしない
	f.svc.now = func() time.Time { return day1.Add(10 * time.Hour) }
	if _, err := f.svc.Cleanup(context.Background()); err != nil {
		t.Fatalf("2回目のCleanup がエラーを返した: %v", err)
	}
	if calls != 1 {
		t.Errorf("削除実行回数 = %d, want 1", calls)
	}

	// 翌日は再び実行される
	f.svc.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	if _, err := f.svc.Cleanup(context.Background()); err != nil {
		t.Fatalf("翌日のCleanup がエラーを返した: %v", err)
	}
	if calls != 2 {
		t.Errorf("削除実行回数 = %d, want 2", calls)
	}
}
