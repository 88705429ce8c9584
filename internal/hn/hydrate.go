package hn

import (
	"context"
	"log/slog"
	"sync"
)

// ItemGetter は単一アイテム取得のインターフェース。
// テスト時にモックに差し替え可能。
type ItemGetter interface {
	GetItem(ctx context.Context, id int) (*Item, error)
}

// HydrateItems はIDリストの各アイテムを並列に取得し、元のID順で返す。
// semaphoreパターンでmaxConcurrentの並列数上限を守り、バッチ全体の完了を待ってから返る。
// 単一アイテムの失敗（取得エラー・デコード失敗・欠落）は結果から抜けるだけで
// バッチ全体を失敗させない。コンテキストのキャンセルのみエラーとして返す。
func HydrateItems(ctx context.Context, getter ItemGetter, logger *slog.Logger, ids []int, maxConcurrent int) ([]*Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	// 結果はインデックスで書き込み、取得完了順に依存せず元のID順を保持する
	results := make([]*Item, len(ids))

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(idx, itemID int) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			item, err := getter.GetItem(ctx, itemID)
			if err != nil {
				logger.Warn("アイテムの取得に失敗しました（スキップ）",
					slog.Int("item_id", itemID),
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

	// 欠落アイテムを除き、順序を保ったまま詰め直す
	items := make([]*Item, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}

	return items, nil
}
