package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tekmint-dev/HackStack/internal/metrics"
	"github.com/tekmint-dev/HackStack/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	CORSAllowedOrigin string

	// ストーリー一覧
	StoryService StoryServiceInterface

	// コメントツリー
	CommentService CommentServiceInterface

	// GET /metrics で公開するPrometheusハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	storyHandler := NewStoryHandler(deps.StoryService)
	commentHandler := NewCommentHandler(deps.CommentService)

	// 運用エンドポイント
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ストーリー一覧
	r.Route("/api/stories", func(r chi.Router) {
		r.Get("/", storyHandler.ListStories)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/favorite", storyHandler.ToggleFavorite)
			r.Post("/read", storyHandler.MarkRead)
			r.Get("/comments", commentHandler.OpenComments)
		})
	})

	// 全文検索
	r.Get("/api/search", storyHandler.SearchStories)

	// 現在ビューのリフレッシュ
	r.Post("/api/refresh", storyHandler.Refresh)

	// コメントツリー
	r.Route("/api/comments", func(r chi.Router) {
		r.Get("/", commentHandler.GetTree)
		r.Post("/more", commentHandler.LoadMore)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/expand", commentHandler.ExpandComment)
			r.Post("/collapse", commentHandler.CollapseComment)
		})
	})

	return r
}
