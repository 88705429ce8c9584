// Package model はドメインモデルを定義する。
package model

import "time"

// Category はストーリー一覧のカテゴリを表す。
type Category string

const (
	// CategoryTop はトップストーリー一覧。
	CategoryTop Category = "top"
	// CategoryNew は新着ストーリー一覧。
	CategoryNew Category = "new"
	// CategoryBest はベストストーリー一覧。
	CategoryBest Category = "best"
	// CategoryAsk はAsk HN一覧。
	CategoryAsk Category = "ask"
	// CategoryShow はShow HN一覧。
	CategoryShow Category = "show"
	// CategoryJob は求人一覧。
	CategoryJob Category = "job"
	// CategoryFavorites はローカルのお気に入り一覧。
	// リモートAPIには対応するエンドポイントが存在せず、常に永続ストアのみから解決される。
	CategoryFavorites Category = "favorites"
	// CategorySearch は全文検索結果一覧。
	// カテゴリ起点のフェッチでは決して取得されず、検索操作のみが結果を供給する。
	CategorySearch Category = "search"
)

// ValidCategories は有効なカテゴリ値のセット。
var ValidCategories = map[Category]bool{
	CategoryTop:       true,
	CategoryNew:       true,
	CategoryBest:      true,
	CategoryAsk:       true,
	CategoryShow:      true,
	CategoryJob:       true,
	CategoryFavorites: true,
	CategorySearch:    true,
}

// SortMode はストーリー一覧のソートモードを表す。
type SortMode string

const (
	// SortDefault はAPIの返却順をそのまま使用するソートモード。
	SortDefault SortMode = "default"
	// SortDate は投稿日時降順のソートモード。
	SortDate SortMode = "date"
	// SortPoints はスコア降順のソートモード。
	SortPoints SortMode = "points"
	// SortFavorites はお気に入り優先・投稿日時降順のソートモード。
	SortFavorites SortMode = "favorites"
)

// ValidSortModes は有効なソートモード値のセット。
var ValidSortModes = map[SortMode]bool{
	SortDefault:   true,
	SortDate:      true,
	SortPoints:    true,
	SortFavorites: true,
}

// DefaultSortFor はカテゴリ切り替え時に適用されるデフォルトのソートモードを返す。
// best はpoints、new/job はdate、それ以外はdefault。
func DefaultSortFor(c Category) SortMode {
	switch c {
	case CategoryBest:
		return SortPoints
	case CategoryNew, CategoryJob:
		return SortDate
	default:
		return SortDefault
	}
}

// Story はストーリー（トップレベルの投稿）を表す。
// IDはリモートAPIのitem idをそのまま主キーとして使用する。
type Story struct {
	ID           int
	Title        string
	URL          string
	Author       string
	Score        int
	CommentCount int
	BodyHTML     string // サニタイズ済みHTML
	PostedAt     time.Time
	RelativeTime string // PostedAtから構築・更新時に導出（読み取りごとに再計算しない）
	ChildIDs     []int  // APIの提示順をそのまま保持する
	IsDeleted    bool
	IsDead       bool
	IsFavorite   bool // リフレッシュマージで唯一上書きされないフィールド
	IsRead       bool // read_statesレコードの存在から導出（カラムとしては永続化しない）
	FetchedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Comment はストーリーに属するコメントを表す。
type Comment struct {
	ID           int
	StoryID      int
	Author       string
	BodyHTML     string // サニタイズ済みHTML
	BodyText     string // HTMLから抽出したプレーンテキスト（プレビュー用）
	PostedAt     time.Time
	RelativeTime string
	ChildIDs     []int // 返信の提示順をそのまま保持する
	Depth        int   // ストーリー直下を0とするネスト深度
	IsDeleted    bool
	IsDead       bool
	FetchedAt    time.Time // 永続ストア側の鮮度判定（24時間TTL）に使用する
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReadState はストーリーの既読状態を表す。
// レコードの存在そのものが既読を意味する。
type ReadState struct {
	StoryID  int
	MarkedAt time.Time
}

// HasChildren はコメントが1件以上の返信を持つかを返す。
func (c *Comment) HasChildren() bool {
	return len(c.ChildIDs) > 0
}

// ShouldDisplay はコメントをツリーに残すべきかを返す。
// 返信を持つコメントは削除済み・deadでもプレースホルダとして残し、
// 返信のない削除済み・deadの葉コメントはフィルタする。
func (c *Comment) ShouldDisplay() bool {
	if c.HasChildren() {
		return true
	}
	return !c.IsDeleted && !c.IsDead
}
