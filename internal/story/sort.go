package story

import (
	"sort"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// sortStories はソートモードを適用した新しいスライスを返す。入力は変更しない。
// defaultモードは取得時の順序（API提示順）をそのまま使うが、
// favoritesカテゴリに限りdefaultでも投稿日時降順を適用する。
// 安定ソートを使用し、キーが等しい要素の相対順序を保持する。
func sortStories(stories []*model.Story, mode model.SortMode, category model.Category) []*model.Story {
	out := make([]*model.Story, len(stories))
	copy(out, stories)

	switch mode {
	case model.SortDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].PostedAt.After(out[j].PostedAt)
		})
	case model.SortPoints:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Score > out[j].Score
		})
	case model.SortFavorites:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].IsFavorite != out[j].IsFavorite {
				return out[i].IsFavorite
			}
			return out[i].PostedAt.After(out[j].PostedAt)
		})
	case model.SortDefault:
		if category == model.CategoryFavorites {
			sort.SliceStable(out, func(i, j int) bool {
				return out[i].PostedAt.After(out[j].PostedAt)
			})
		}
	}

	return out
}

// sortSearchResults は検索結果の提示順を適用した新しいスライスを返す。
// スコア降順、同点はコメント数降順。
func sortSearchResults(stories []*model.Story) []*model.Story {
	out := make([]*model.Story, len(stories))
	copy(out, stories)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CommentCount > out[j].CommentCount
	})

	return out
}
