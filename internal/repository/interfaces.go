// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// StoryRepository はストーリーデータの永続化インターフェース。
type StoryRepository interface {
	// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Story, error)

	// ListByIDs は指定IDセットに含まれるストーリーを取得する。
	// 返却順は保証しない（呼び出し元がIDでマップ化する）。
	ListByIDs(ctx context.Context, ids []int) ([]*model.Story, error)

	// ListFavorites はis_favorite = trueのストーリーをposted_at降順で取得する。
	ListFavorites(ctx context.Context) ([]*model.Story, error)

	// Upsert はストーリーを挿入または全フィールド上書き更新する。
	// お気に入りフラグの保全はマージ処理を行うサービス層の責務であり、
	// リポジトリは渡された値をそのまま書き込む。
	Upsert(ctx context.Context, story *model.Story) error

	// UpdateFavorite はお気に入りフラグのみを更新する。
	UpdateFavorite(ctx context.Context, id int, favorite bool) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// ListFreshByIDs は指定IDセットのうちfetched_atがfetchedAfter以降のコメントを取得する。
	// 永続ストア側の鮮度判定（24時間TTL）に使用する。返却順は保証しない。
	ListFreshByIDs(ctx context.Context, ids []int, fetchedAfter time.Time) ([]*model.Comment, error)

	// Upsert はコメントを挿入または上書き更新する。
	Upsert(ctx context.Context, comment *model.Comment) error

	// DeleteByStory は指定ストーリーに属する全コメントを削除する。
	// 強制リフレッシュ時に使用する。
	DeleteByStory(ctx context.Context, storyID int) error

	// DeleteOlderThan はposted_atがthresholdより古いコメントを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

// ReadStateRepository はストーリー既読状態の永続化インターフェース。
type ReadStateRepository interface {
	// Exists は指定ストーリーの既読レコードが存在するかを返す。
	Exists(ctx context.Context, storyID int) (bool, error)

	// ListStoryIDs は既読レコードを持つ全ストーリーIDを返す。
	ListStoryIDs(ctx context.Context) ([]int, error)

	// Insert は既読レコードを冪等に挿入する。
	// 既にレコードが存在する場合は何もしない（marked_atは更新しない）。
	Insert(ctx context.Context, storyID int, markedAt time.Time) error
}
