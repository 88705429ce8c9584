package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// PostgresStoryRepo はPostgreSQLを使用したストーリーリポジトリ。
type PostgresStoryRepo struct {
	db *sql.DB
}

// NewPostgresStoryRepo はPostgresStoryRepoを生成する。
func NewPostgresStoryRepo(db *sql.DB) *PostgresStoryRepo {
	return &PostgresStoryRepo{db: db}
}

const storyColumns = `id, title, url, author, score, comment_count, body_html,
	       posted_at, relative_time, child_ids, is_deleted, is_dead, is_favorite,
	       fetched_at, created_at, updated_at`

// scanStory は1行分のストーリーをスキャンする。
func scanStory(scanner interface{ Scan(dest ...interface{}) error }) (*model.Story, error) {
	story := &model.Story{}
	var url, bodyHTML sql.NullString
	var childIDs string

	err := scanner.Scan(
		&story.ID, &story.Title, &url, &story.Author, &story.Score,
		&story.CommentCount, &bodyHTML,
		&story.PostedAt, &story.RelativeTime, &childIDs,
		&story.IsDeleted, &story.IsDead, &story.IsFavorite,
		&story.FetchedAt, &story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	story.URL = nullStringValue(url)
	story.BodyHTML = nullStringValue(bodyHTML)
	story.ChildIDs = model.DecodeIDList(childIDs)

	return story, nil
}

// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
func (r *PostgresStoryRepo) FindByID(ctx context.Context, id int) (*model.Story, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)

	story, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}

	return story, nil
}

// ListByIDs は指定IDセットに含まれるストーリーを取得する。
func (r *PostgresStoryRepo) ListByIDs(ctx context.Context, ids []int) ([]*model.Story, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idArgs := make([]int64, len(ids))
	for i, id := range ids {
		idArgs[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = ANY($1)`,
		pq.Array(idArgs),
	)
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("ストーリー行の読み取りに失敗しました: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}

	return stories, nil
}

// ListFavorites はis_favorite = trueのストーリーをposted_at降順で取得する。
func (r *PostgresStoryRepo) ListFavorites(ctx context.Context) ([]*model.Story, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE is_favorite ORDER BY posted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("お気に入り行の読み取りに失敗しました: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("お気に入り一覧の走査に失敗しました: %w", err)
	}

	return stories, nil
}

// Upsert はストーリーを挿入または全フィールド上書き更新する。
func (r *PostgresStoryRepo) Upsert(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stories (id, title, url, author, score, comment_count, body_html,
		                      posted_at, relative_time, child_ids, is_deleted, is_dead,
		                      is_favorite, fetched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		    title = EXCLUDED.title, url = EXCLUDED.url, author = EXCLUDED.author,
		    score = EXCLUDED.score, comment_count = EXCLUDED.comment_count,
		    body_html = EXCLUDED.body_html, posted_at = EXCLUDED.posted_at,
		    relative_time = EXCLUDED.relative_time, child_ids = EXCLUDED.child_ids,
		    is_deleted = EXCLUDED.is_deleted, is_dead = EXCLUDED.is_dead,
		    is_favorite = EXCLUDED.is_favorite, fetched_at = EXCLUDED.fetched_at,
		    updated_at = now()`,
		story.ID, story.Title, nullString(story.URL), story.Author, story.Score,
		story.CommentCount, nullString(story.BodyHTML),
		story.PostedAt, story.RelativeTime, model.EncodeIDList(story.ChildIDs),
		story.IsDeleted, story.IsDead, story.IsFavorite, story.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// UpdateFavorite はお気に入りフラグのみを更新する。
func (r *PostgresStoryRepo) UpdateFavorite(ctx context.Context, id int, favorite bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE stories SET is_favorite = $2, updated_at = now() WHERE id = $1`,
		id, favorite,
	)
	if err != nil {
		return fmt.Errorf("お気に入りフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列値を取り出す。NULLは空文字列になる。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ StoryRepository = (*PostgresStoryRepo)(nil)
