// Package comment はコメントツリーの段階的な構築と展開を提供する。
// ストーリーのトップレベルコメントIDをページ単位で実体化し、
// 返信は有界の並列数で先読み展開する。
package comment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tekmint-dev/HackStack/internal/cache"
	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/metrics"
	"github.com/tekmint-dev/HackStack/internal/model"
	"github.com/tekmint-dev/HackStack/internal/repository"
	"github.com/tekmint-dev/HackStack/internal/security"
)

// ItemGetter は単一アイテム取得のインターフェース。
type ItemGetter interface {
	GetItem(ctx context.Context, id int) (*hn.Item, error)
}

// TreeConfig はTreeBuilderの設定パラメータ。
type TreeConfig struct {
	// PageSize は1ページあたりのトップレベルコメント数。
	PageSize int
	// MaxComments はセッションあたりのトップレベルコメント上限。
	MaxComments int
	// StoreTTL は永続ストア側のコメント鮮度TTL。
	// リモートキャッシュの5分TTLとは独立した、より長い有効期限。
	StoreTTL time.Duration
	// LoadMoreInterval はページフェッチ間の最小スロットル間隔。
	LoadMoreInterval time.Duration
	// FetchMaxConcurrent はページ・返信フェッチのバッチ最大並列数。
	FetchMaxConcurrent int
	// ExpandMaxConcurrent は同時に実行できる返信展開の上限。
	ExpandMaxConcurrent int
	// ExpandMaxRetries は返信展開の最大リトライ回数。
	ExpandMaxRetries int
	// ExpandRetryDelay はリトライ再投入までの遅延。
	ExpandRetryDelay time.Duration
}

// expandTask は返信展開キューの1エントリ。
type expandTask struct {
	node       *model.CommentNode
	retryCount int
}

// TreeBuilder はコメントツリーを段階的に構築するビルダー。
//
// ツリー構造・ロード済みIDセット・展開キュー・実行中カウントといった
// 共有状態への全ての変更は単一のミューテックスで直列化され、
// 展開の並列上限はactiveカウントが上限未満の間だけキューから取り出すことで成立する。
// ネットワークフェッチ自体はロック外で行う。
type TreeBuilder struct {
	commentRepo repository.CommentRepository
	source      ItemGetter
	remoteCache *cache.RemoteCache
	sanitizer   security.ContentSanitizerService
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      TreeConfig

	mu           sync.Mutex
	story        *model.Story
	roots        []*model.CommentNode
	nodesByID    map[int]*model.CommentNode
	loadedIDs    map[int]bool
	page         int
	pagedCount   int
	lastLoadAt   time.Time
	isLoading    bool
	errorMessage string

	queue  []expandTask
	active int

	// gen はリセットごとに増加する世代番号。
	// リセット前に開始した展開の結果が新しいツリーに混入するのを防ぐ。
	gen int

	expandWG sync.WaitGroup

	// now / sleep はテストで差し替えるためのフック。
	now   func() time.Time
	sleep func(d time.Duration)
}

// NewTreeBuilder はTreeBuilderの新しいインスタンスを生成する。
func NewTreeBuilder(
	commentRepo repository.CommentRepository,
	source ItemGetter,
	remoteCache *cache.RemoteCache,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg TreeConfig,
) *TreeBuilder {
	return &TreeBuilder{
		commentRepo: commentRepo,
		source:      source,
		remoteCache: remoteCache,
		sanitizer:   sanitizer,
		metrics:     collector,
		logger:      logger,
		config:      cfg,
		nodesByID:   make(map[int]*model.CommentNode),
		loadedIDs:   make(map[int]bool),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Reset はツリーを指定ストーリーで初期化し、最初のページを取得する。
// forceFreshは永続ストアのこのストーリーのコメントを削除し、
// リモートキャッシュのコメントエントリを全て破棄してから取得する。
// loadAllはhasMoreがfalseになるまでページをループ取得する。
func (b *TreeBuilder) Reset(ctx context.Context, story *model.Story, forceFresh, loadAll bool) error {
	b.mu.Lock()
	b.story = story
	b.roots = nil
	b.nodesByID = make(map[int]*model.CommentNode)
	b.loadedIDs = make(map[int]bool)
	b.page = 0
	b.pagedCount = 0
	b.lastLoadAt = time.Time{}
	b.isLoading = false
	b.errorMessage = ""
	b.queue = nil
	b.active = 0
	b.gen++
	b.mu.Unlock()

	if forceFresh {
		if err := b.commentRepo.DeleteByStory(ctx, story.ID); err != nil {
			b.logger.Error("ストーリーのコメント削除に失敗しました",
				slog.Int("story_id", story.ID),
				slog.String("error", err.Error()),
			)
		}
		b.remoteCache.InvalidateAllComments()
	}

	if err := b.fetchPage(ctx, forceFresh); err != nil {
		return err
	}
	if loadAll {
		for b.HasMore() {
			if err := b.fetchPage(ctx, forceFresh); err != nil {
				return err
			}
		}
	}

	return nil
}

// LoadMore は次のページを取得する。スロットル間隔内・上限到達・
// ロード実行中のいずれかに該当する場合は何もしない。
// スロットルは待機ではなく判定のみで、間隔が空いてから再度呼び出す必要がある。
func (b *TreeBuilder) LoadMore(ctx context.Context) error {
	b.mu.Lock()
	if b.story == nil {
		b.mu.Unlock()
		return model.NewStoryNotSelectedError()
	}
	if b.isLoading || !b.hasMoreLocked() {
		b.mu.Unlock()
		return nil
	}
	if !b.lastLoadAt.IsZero() && b.now().Sub(b.lastLoadAt) < b.config.LoadMoreInterval {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	return b.fetchPage(ctx, false)
}

// HasMore は未取得のトップレベルコメントが残っているかを返す。
// ストーリーのchildIDsに残りがあっても、上限に達していればfalseを返す。
func (b *TreeBuilder) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasMoreLocked()
}

func (b *TreeBuilder) hasMoreLocked() bool {
	if b.story == nil {
		return false
	}
	return b.pagedCount < len(b.story.ChildIDs) && b.pagedCount < b.config.MaxComments
}

// ErrorMessage は直近のページ取得のエラーメッセージを返す。正常時は空文字列。
func (b *TreeBuilder) ErrorMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorMessage
}

// fetchPage は現在のページのトップレベルコメントを取得してツリーに追加し、
// 返信を持つ新規ノードを展開キューに自動投入する。
func (b *TreeBuilder) fetchPage(ctx context.Context, forceFresh bool) error {
	b.mu.Lock()
	if b.story == nil {
		b.mu.Unlock()
		return model.NewStoryNotSelectedError()
	}
	if b.isLoading {
		b.mu.Unlock()
		return nil
	}
	story := b.story
	page := b.page
	gen := b.gen

	start := page * b.config.PageSize
	if start >= len(story.ChildIDs) || b.pagedCount >= b.config.MaxComments {
		b.mu.Unlock()
		return nil
	}
	end := start + b.config.PageSize
	if end > len(story.ChildIDs) {
		end = len(story.ChildIDs)
	}
	// 上限を跨ぐページは上限ちょうどまでに切り詰める
	if remaining := b.config.MaxComments - b.pagedCount; end-start > remaining {
		end = start + remaining
	}
	ids := story.ChildIDs[start:end]
	b.isLoading = true
	b.mu.Unlock()

	comments, err := b.fetchComments(ctx, ids, story.ID, 0, forceFresh)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		// リセットに追い越されたページは破棄する
		return nil
	}
	b.isLoading = false

	if err != nil {
		if !model.IsCancellation(err) {
			b.errorMessage = err.Error()
			b.logger.Error("コメントページの取得に失敗しました",
				slog.Int("story_id", story.ID),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
		}
		return err
	}

	var withChildren []*model.CommentNode
	for _, c := range comments {
		if b.loadedIDs[c.ID] {
			continue
		}
		node := model.NewCommentNode(c, nil)
		b.roots = append(b.roots, node)
		b.nodesByID[c.ID] = node
		b.loadedIDs[c.ID] = true
		if c.HasChildren() {
			withChildren = append(withChildren, node)
		}
	}
	b.page = page + 1
	b.pagedCount += len(ids)
	b.lastLoadAt = b.now()
	b.errorMessage = ""
	b.metrics.RecordCommentsLoaded(len(comments))

	// 返信を持つトップレベルノードは自動的に展開キューへ
	for _, node := range withChildren {
		b.enqueueLocked(ctx, expandTask{node: node})
	}

	return nil
}

// fetchComments は指定IDセットのコメントを3層（永続ストア・リモートキャッシュ・
// ネットワーク）のマージで取得する。結果は元のID順で、ID重複はなく、
// 返信のない削除済み・deadの葉コメントはフィルタされる。
// フィルタされたコメントはストアにもキャッシュにも入れない。
func (b *TreeBuilder) fetchComments(ctx context.Context, ids []int, storyID, depth int, forceFresh bool) ([]*model.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[int]*model.Comment)
	missing := ids

	if !forceFresh {
		// 永続ストア（24時間TTL）
		fetchedAfter := b.now().Add(-b.config.StoreTTL)
		stored, err := b.commentRepo.ListFreshByIDs(ctx, ids, fetchedAfter)
		if err != nil {
			b.logger.Error("コメントキャッシュの読み込みに失敗しました",
				slog.String("error", err.Error()),
			)
		}
		for _, c := range stored {
			found[c.ID] = c
			b.metrics.RecordCacheHit(metrics.CacheLayerStoreComment)
		}

		// ストアミスはリモートキャッシュ（5分TTL）へ
		missing = nil
		for _, id := range ids {
			if _, ok := found[id]; ok {
				continue
			}
			b.metrics.RecordCacheMiss(metrics.CacheLayerStoreComment)
			if c, ok := b.remoteCache.GetComment(id); ok {
				found[id] = c
				b.metrics.RecordCacheHit(metrics.CacheLayerRemoteComment)
			} else {
				missing = append(missing, id)
				b.metrics.RecordCacheMiss(metrics.CacheLayerRemoteComment)
			}
		}
	}

	if len(missing) > 0 {
		items, err := b.fetchMissing(ctx, missing)
		if err != nil {
			return nil, err
		}

		now := b.now()
		for _, it := range items {
			c := CommentFromItem(it, storyID, depth, b.sanitizer, now)
			if !c.ShouldDisplay() {
				continue
			}
			found[c.ID] = c
			if err := b.commentRepo.Upsert(ctx, c); err != nil {
				b.logger.Error("コメントの保存に失敗しました",
					slog.Int("comment_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
			b.remoteCache.PutComment(c.ID, c)
		}
	}

	// 取得完了順ではなく元のchildIDs順でマージする
	out := make([]*model.Comment, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		c, ok := found[id]
		if !ok || seen[id] {
			continue
		}
		if !c.ShouldDisplay() {
			continue
		}
		seen[id] = true
		out = append(out, c)
	}

	return out, nil
}

// fetchMissing はIDセットを並列にフェッチし、元のID順を保って返す。
// 単一アイテムの失敗（取得エラー・デコード失敗・欠落）は結果から欠けるだけだが、
// 1件も取得できずエラーだけが残った場合はバッチ全体の失敗として返す
// （ページ取得のエラー表示と返信展開のリトライはこの失敗を契機とする）。
func (b *TreeBuilder) fetchMissing(ctx context.Context, ids []int) ([]*hn.Item, error) {
	maxConcurrent := b.config.FetchMaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]*hn.Item, len(ids))
	errs := make([]error, len(ids))

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(idx, itemID int) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			item, err := b.source.GetItem(ctx, itemID)
			if err != nil {
				errs[idx] = err
				b.logger.Warn("コメントの取得に失敗しました（スキップ）",
					slog.Int("comment_id", itemID),
					slog.String("error", err.Error()),
				)
				return
			}
			results[idx] = item
		}(i, id)
	}

	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	items := make([]*hn.Item, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}

	return items, nil
}

// Expand は指定コメントの返信展開をキューに投入する。
// 折りたたみ解除で未ロードのノードを開く場合に使用する。
// 既にロード済み・展開中のノードには何もしない。
func (b *TreeBuilder) Expand(ctx context.Context, commentID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.nodesByID[commentID]
	if !ok {
		return model.NewCommentNotFoundError(commentID)
	}
	b.enqueueLocked(ctx, expandTask{node: node})
	return nil
}

// SetCollapsed はノードの折りたたみ状態を設定する。純粋な表示フラグで、
// ロード状態には影響しない。
func (b *TreeBuilder) SetCollapsed(commentID int, collapsed bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.nodesByID[commentID]
	if !ok {
		return model.NewCommentNotFoundError(commentID)
	}
	node.IsCollapsed = collapsed
	return nil
}

// enqueueLocked はタスクを展開キューに積み、空き枠があれば実行を開始する。
// ロード済み・展開中・キュー済みのノードは二重投入しない。呼び出し元がロックを保持する。
func (b *TreeBuilder) enqueueLocked(ctx context.Context, task expandTask) {
	if task.node.HasLoadedChildren || task.node.IsLoadingReplies {
		return
	}
	for _, queued := range b.queue {
		if queued.node == task.node {
			return
		}
	}
	b.queue = append(b.queue, task)
	b.pumpLocked(ctx)
}

// pumpLocked はactiveが上限未満の間、キューの先頭から展開を起動する。
// 並列上限はこのカウンタだけで成立し、上限に達している間は取り出さない。
func (b *TreeBuilder) pumpLocked(ctx context.Context) {
	for b.active < b.config.ExpandMaxConcurrent && len(b.queue) > 0 {
		task := b.queue[0]
		b.queue = b.queue[1:]
		b.active++
		task.node.IsLoadingReplies = true
		task.node.LoadError = ""

		b.expandWG.Add(1)
		go b.runExpand(ctx, task, b.gen)
	}
}

// runExpand は1ノードの返信展開を実行する。
// 成功時は子ノードを接続し、返信を持つ子を再帰的にキューへ投入する
// （深いスレッドをユーザー操作の一歩先まで先読みする）。
// 失敗時はリトライ上限までキューに再投入し、上限到達でノードにエラーを記録する。
// 失敗はこのノードに局所化され、兄弟ノードやツリー全体には伝播しない。
func (b *TreeBuilder) runExpand(ctx context.Context, task expandTask, gen int) {
	defer b.expandWG.Done()

	node := task.node
	comments, err := b.fetchComments(ctx, node.Comment.ChildIDs, node.Comment.StoryID, node.Comment.Depth+1, false)

	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		// リセット後に完了した展開の結果は捨てる
		return
	}

	b.active--
	node.IsLoadingReplies = false

	if err != nil {
		if model.IsCancellation(err) {
			b.pumpLocked(ctx)
			return
		}
		if task.retryCount < b.config.ExpandMaxRetries {
			b.metrics.RecordReplyRetry()
			b.scheduleRetryLocked(ctx, expandTask{node: node, retryCount: task.retryCount + 1}, gen)
		} else {
			node.LoadError = err.Error()
			b.logger.Warn("返信展開がリトライ上限に達しました",
				slog.Int("comment_id", node.Comment.ID),
				slog.String("error", err.Error()),
			)
		}
		b.pumpLocked(ctx)
		return
	}

	var withChildren []*model.CommentNode
	for _, c := range comments {
		if b.loadedIDs[c.ID] {
			continue
		}
		child := model.NewCommentNode(c, node)
		node.Children = append(node.Children, child)
		b.nodesByID[c.ID] = child
		b.loadedIDs[c.ID] = true
		if c.HasChildren() {
			withChildren = append(withChildren, child)
		}
	}
	node.HasLoadedChildren = true
	b.metrics.RecordCommentsLoaded(len(comments))

	for _, child := range withChildren {
		b.enqueueLocked(ctx, expandTask{node: child})
	}
	b.pumpLocked(ctx)
}

// scheduleRetryLocked は遅延後にタスクをキューへ再投入する。呼び出し元がロックを保持する。
func (b *TreeBuilder) scheduleRetryLocked(ctx context.Context, task expandTask, gen int) {
	b.expandWG.Add(1)
	go func() {
		defer b.expandWG.Done()
		b.sleep(b.config.ExpandRetryDelay)

		b.mu.Lock()
		defer b.mu.Unlock()
		if gen != b.gen {
			return
		}
		b.queue = append(b.queue, task)
		b.pumpLocked(ctx)
	}()
}

// WaitForExpansions はキューと実行中の展開が全て完了するまでブロックする。
func (b *TreeBuilder) WaitForExpansions() {
	b.expandWG.Wait()
}

// Snapshot はツリーのディープコピーを返す。
// 返却後に進行する展開の影響を受けない読み取り専用のビュー。
func (b *TreeBuilder) Snapshot() []*model.CommentNode {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*model.CommentNode, len(b.roots))
	for i, root := range b.roots {
		out[i] = cloneNode(root, nil)
	}
	return out
}

func cloneNode(n *model.CommentNode, parent *model.CommentNode) *model.CommentNode {
	c := *n.Comment
	clone := &model.CommentNode{
		Comment:           &c,
		Parent:            parent,
		HasLoadedChildren: n.HasLoadedChildren,
		IsLoadingReplies:  n.IsLoadingReplies,
		LoadError:         n.LoadError,
		IsCollapsed:       n.IsCollapsed,
	}
	for _, child := range n.Children {
		clone.Children = append(clone.Children, cloneNode(child, clone))
	}
	return clone
}
