// Package cache はリモートデータソースの前段に置くプロセス内キャッシュを提供する。
// 有効期限内の重複フェッチを排除することでレート制限に敏感なAPIを保護する。
package cache

import (
	"sync"
	"time"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// storyEntry はカテゴリ別ストーリー一覧のキャッシュエントリ。
type storyEntry struct {
	stories  []*model.Story
	cachedAt time.Time
}

// commentEntry はコメントのキャッシュエントリ。
type commentEntry struct {
	comment  *model.Comment
	cachedAt time.Time
}

// RemoteCache はプロセス内・プロセス生存期間のTTLキャッシュ。
// LRUではなく、読み取り時のTTL判定と明示的な無効化のみを行う。
// 全ての読み書きは単一のミューテックスで直列化され、共有状態の競合を排除する。
type RemoteCache struct {
	mu sync.Mutex

	stories  map[model.Category]*storyEntry
	comments map[int]*commentEntry

	storyTTL   time.Duration
	commentTTL time.Duration

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time
}

// NewRemoteCache はRemoteCacheの新しいインスタンスを生成する。
func NewRemoteCache(storyTTL, commentTTL time.Duration) *RemoteCache {
	return &RemoteCache{
		stories:    make(map[model.Category]*storyEntry),
		comments:   make(map[int]*commentEntry),
		storyTTL:   storyTTL,
		commentTTL: commentTTL,
		now:        time.Now,
	}
}

// GetStories はカテゴリのストーリー一覧を返す。
// エントリが存在しTTL内の場合のみ返し、それ以外はnilと偽を返す（呼び出し元がフェッチする）。
func (c *RemoteCache) GetStories(category model.Category) ([]*model.Story, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.stories[category]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) >= c.storyTTL {
		return nil, false
	}
	return entry.stories, true
}

// PutStories はカテゴリのストーリー一覧を現在時刻のスタンプ付きで置き換える。
func (c *RemoteCache) PutStories(category model.Category, stories []*model.Story) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stories[category] = &storyEntry{
		stories:  stories,
		cachedAt: c.now(),
	}
}

// InvalidateStories はカテゴリのエントリを無条件に破棄する。
// 明示的リフレッシュ時に使用する。
func (c *RemoteCache) InvalidateStories(category model.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.stories, category)
}

// GetComment は指定IDのコメントを返す。TTL切れ・未登録の場合はnilと偽を返す。
func (c *RemoteCache) GetComment(id int) (*model.Comment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.comments[id]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) >= c.commentTTL {
		return nil, false
	}
	return entry.comment, true
}

// PutComment はコメントを現在時刻のスタンプ付きで登録する。
func (c *RemoteCache) PutComment(id int, comment *model.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.comments[id] = &commentEntry{
		comment:  comment,
		cachedAt: c.now(),
	}
}

// InvalidateAllComments はコメントキャッシュ全体を破棄する。
// コメントIDはストーリーに固有であり、別ストーリーのスレッドに切り替える際に
// 残存エントリがヒットすることはないが、メモリ衛生のため先回りで破棄する。
func (c *RemoteCache) InvalidateAllComments() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.comments = make(map[int]*commentEntry)
}
