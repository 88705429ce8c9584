package comment

import (
	"time"

	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/model"
	"github.com/tekmint-dev/HackStack/internal/security"
)

// CommentFromItem はリモートAPIの生レコードをCommentエンティティに変換する。
// 本文はサニタイズされ、プレビュー用のプレーンテキストと相対時刻も
// 構築時に1回だけ導出される。
func CommentFromItem(item *hn.Item, storyID, depth int, sanitizer security.ContentSanitizerService, now time.Time) *model.Comment {
	posted := time.Unix(item.Time, 0).UTC()
	body := sanitizer.Sanitize(item.Text)
	return &model.Comment{
		ID:           item.ID,
		StoryID:      storyID,
		Author:       item.By,
		BodyHTML:     body,
		BodyText:     security.ExtractText(body),
		PostedAt:     posted,
		RelativeTime: model.RelativeTimeFrom(posted, now),
		ChildIDs:     item.Kids,
		Depth:        depth,
		IsDeleted:    item.Deleted,
		IsDead:       item.Dead,
		FetchedAt:    now,
	}
}
