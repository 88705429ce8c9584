package story

import (
	"time"

	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/model"
	"github.com/tekmint-dev/HackStack/internal/security"
)

// StoryFromItem はリモートAPIの生レコードをStoryエンティティに変換する。
// 本文はこの時点でサニタイズされ、相対時刻も構築時に1回だけ導出される。
func StoryFromItem(item *hn.Item, sanitizer security.ContentSanitizerService, now time.Time) *model.Story {
	posted := time.Unix(item.Time, 0).UTC()
	return &model.Story{
		ID:           item.ID,
		Title:        item.Title,
		URL:          item.URL,
		Author:       item.By,
		Score:        item.Score,
		CommentCount: item.Descendants,
		BodyHTML:     sanitizer.Sanitize(item.Text),
		PostedAt:     posted,
		RelativeTime: model.RelativeTimeFrom(posted, now),
		ChildIDs:     item.Kids,
		IsDeleted:    item.Deleted,
		IsDead:       item.Dead,
		FetchedAt:    now,
	}
}
