// Package cleanup はコメントデータの自動削除ジョブを提供する。
// 保持期間（デフォルト7日）を超過したコメントを定期バッチで削除する。
// 実行頻度の上限（1暦日1回）はサービス層が保証するため、
// スケジューラ自体は短い間隔で安全に回せる。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// CleanupService はクリーンアップ実行のインターフェース。
type CleanupService interface {
	// Cleanup は保持期間を超過したコメントを削除し、削除件数を返す。
	// 1暦日1回の実行保証はサービス側が持ち、同日中の再呼び出しは(0, nil)を返す。
	Cleanup(ctx context.Context) (int64, error)
}

// Scheduler はクリーンアップジョブの定期実行を行う。
type Scheduler struct {
	service CleanupService
	logger  *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(service CleanupService, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce はクリーンアップを1回実行する。失敗はログに記録し、次回に委ねる。
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()

	deleted, err := s.service.Cleanup(ctx)
	if err != nil {
		s.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	if deleted > 0 {
		s.logger.Info("クリーンアップジョブが完了しました",
			slog.Int64("deleted_count", deleted),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
}
