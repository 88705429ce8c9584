package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

const commentColumns = `id, story_id, author, body_html, body_text, posted_at,
	       relative_time, child_ids, depth, is_deleted, is_dead,
	       fetched_at, created_at, updated_at`

// scanComment は1行分のコメントをスキャンする。
func scanComment(scanner interface{ Scan(dest ...interface{}) error }) (*model.Comment, error) {
	c := &model.Comment{}
	var childIDs string

	err := scanner.Scan(
		&c.ID, &c.StoryID, &c.Author, &c.BodyHTML, &c.BodyText, &c.PostedAt,
		&c.RelativeTime, &childIDs, &c.Depth, &c.IsDeleted, &c.IsDead,
		&c.FetchedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ChildIDs = model.DecodeIDList(childIDs)

	return c, nil
}

// ListFreshByIDs は指定IDセットのうちfetched_atがfetchedAfter以降のコメントを取得する。
func (r *PostgresCommentRepo) ListFreshByIDs(ctx context.Context, ids []int, fetchedAfter time.Time) ([]*model.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idArgs := make([]int64, len(ids))
	for i, id := range ids {
		idArgs[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE id = ANY($1) AND fetched_at >= $2`,
		pq.Array(idArgs), fetchedAfter,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}

	return comments, nil
}

// Upsert はコメントを挿入または上書き更新する。
func (r *PostgresCommentRepo) Upsert(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, story_id, author, body_html, body_text, posted_at,
		                       relative_time, child_ids, depth, is_deleted, is_dead,
		                       fetched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		    story_id = EXCLUDED.story_id, author = EXCLUDED.author,
		    body_html = EXCLUDED.body_html, body_text = EXCLUDED.body_text,
		    posted_at = EXCLUDED.posted_at, relative_time = EXCLUDED.relative_time,
		    child_ids = EXCLUDED.child_ids, depth = EXCLUDED.depth,
		    is_deleted = EXCLUDED.is_deleted, is_dead = EXCLUDED.is_dead,
		    fetched_at = EXCLUDED.fetched_at, updated_at = now()`,
		c.ID, c.StoryID, c.Author, c.BodyHTML, c.BodyText, c.PostedAt,
		c.RelativeTime, model.EncodeIDList(c.ChildIDs), c.Depth,
		c.IsDeleted, c.IsDead, c.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// DeleteByStory は指定ストーリーに属する全コメントを削除する。
func (r *PostgresCommentRepo) DeleteByStory(ctx context.Context, storyID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE story_id = $1`, storyID)
	if err != nil {
		return fmt.Errorf("ストーリーのコメント削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan はposted_atがthresholdより古いコメントを削除し、削除件数を返す。
func (r *PostgresCommentRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE posted_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("古いコメントの削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
