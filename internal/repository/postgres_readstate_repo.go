package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresReadStateRepo はPostgreSQLを使用した既読状態リポジトリ。
type PostgresReadStateRepo struct {
	db *sql.DB
}

// NewPostgresReadStateRepo はPostgresReadStateRepoを生成する。
func NewPostgresReadStateRepo(db *sql.DB) *PostgresReadStateRepo {
	return &PostgresReadStateRepo{db: db}
}

// Exists は指定ストーリーの既読レコードが存在するかを返す。
func (r *PostgresReadStateRepo) Exists(ctx context.Context, storyID int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM read_states WHERE story_id = $1)`,
		storyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("既読状態の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ListStoryIDs は既読レコードを持つ全ストーリーIDを返す。
func (r *PostgresReadStateRepo) ListStoryIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT story_id FROM read_states`)
	if err != nil {
		return nil, fmt.Errorf("既読ストーリーID一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("既読ストーリーIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既読ストーリーID一覧の走査に失敗しました: %w", err)
	}

	return ids, nil
}

// Insert は既読レコードを冪等に挿入する。
// 既にレコードが存在する場合は何もしない（marked_atは更新しない）。
func (r *PostgresReadStateRepo) Insert(ctx context.Context, storyID int, markedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO read_states (story_id, marked_at) VALUES ($1, $2)
		 ON CONFLICT (story_id) DO NOTHING`,
		storyID, markedAt,
	)
	if err != nil {
		return fmt.Errorf("既読レコードの挿入に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReadStateRepository = (*PostgresReadStateRepo)(nil)
