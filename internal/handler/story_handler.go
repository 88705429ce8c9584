package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tekmint-dev/HackStack/internal/middleware"
	"github.com/tekmint-dev/HackStack/internal/model"
)

// StoryServiceInterface はストーリーハンドラーが必要とするサービスインターフェース。
type StoryServiceInterface interface {
	// SelectCategory はカテゴリを切り替え、カテゴリ既定のソートで一覧を返す。
	SelectCategory(ctx context.Context, category model.Category) ([]*model.Story, error)
	// SetSortMode は現在の一覧を再フェッチせずに並べ替える。
	SetSortMode(sortMode model.SortMode) ([]*model.Story, error)
	// Search は検索クエリの結果一覧を返す。空クエリは検索前の一覧を復元する。
	Search(ctx context.Context, query string) ([]*model.Story, error)
	// ToggleFavorite はお気に入り状態を反転し、更新後のストーリーを返す。
	ToggleFavorite(ctx context.Context, storyID int) (*model.Story, error)
	// MarkRead はストーリーを既読にする。冪等。
	MarkRead(ctx context.Context, storyID int) error
	// RefreshCurrentView は現在のビューをキャッシュをバイパスして再取得する。
	RefreshCurrentView(ctx context.Context) ([]*model.Story, error)
	// Category は現在のカテゴリを返す。
	Category() model.Category
	// SortMode は現在のソートモードを返す。
	SortMode() model.SortMode
	// ErrorMessage は直近の操作で表示すべきエラーメッセージを返す。
	ErrorMessage() string
}

// StoryHandler はストーリー一覧のHTTPハンドラー。
type StoryHandler struct {
	service StoryServiceInterface
}

// NewStoryHandler はStoryHandlerを生成する。
func NewStoryHandler(service StoryServiceInterface) *StoryHandler {
	return &StoryHandler{service: service}
}

// --- レスポンス型 ---

// storyResponse はストーリー1件のレスポンス。
type storyResponse struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	Author       string    `json:"author"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	BodyHTML     string    `json:"body_html,omitempty"` // サニタイズ済みHTML
	PostedAt     time.Time `json:"posted_at"`
	RelativeTime string    `json:"relative_time"`
	IsDeleted    bool      `json:"is_deleted"`
	IsDead       bool      `json:"is_dead"`
	IsFavorite   bool      `json:"is_favorite"`
	IsRead       bool      `json:"is_read"`
}

// storyListResponse はストーリー一覧のレスポンス。
// ErrorMessageは前回成功時の一覧を保持したままのフェッチ失敗を表す。
type storyListResponse struct {
	Category     model.Category  `json:"category"`
	Sort         model.SortMode  `json:"sort"`
	Stories      []storyResponse `json:"stories"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func toStoryResponse(s *model.Story) storyResponse {
	return storyResponse{
		ID:           s.ID,
		Title:        s.Title,
		URL:          s.URL,
		Author:       s.Author,
		Score:        s.Score,
		CommentCount: s.CommentCount,
		BodyHTML:     s.BodyHTML,
		PostedAt:     s.PostedAt,
		RelativeTime: s.RelativeTime,
		IsDeleted:    s.IsDeleted,
		IsDead:       s.IsDead,
		IsFavorite:   s.IsFavorite,
		IsRead:       s.IsRead,
	}
}

func (h *StoryHandler) writeStoryList(w http.ResponseWriter, stories []*model.Story) {
	resp := storyListResponse{
		Category:     h.service.Category(),
		Sort:         h.service.SortMode(),
		Stories:      make([]storyResponse, 0, len(stories)),
		ErrorMessage: h.service.ErrorMessage(),
	}
	for _, s := range stories {
		resp.Stories = append(resp.Stories, toStoryResponse(s))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListStories はストーリー一覧を取得する。
// GET /api/stories?category=top&sort=points
// categoryを指定するとカテゴリを切り替え、既定のソートモードが適用される。
// sortを指定すると再フェッチせずに並べ替えのみ行う。
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	categoryStr := r.URL.Query().Get("category")
	sortStr := r.URL.Query().Get("sort")

	// カテゴリ未指定の場合は現在のカテゴリを維持する
	category := h.service.Category()
	if categoryStr != "" {
		category = model.Category(categoryStr)
	}

	stories, err := h.service.SelectCategory(r.Context(), category)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if sortStr != "" {
		stories, err = h.service.SetSortMode(model.SortMode(sortStr))
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	h.writeStoryList(w, stories)
}

// SearchStories は全文検索を実行する。
// GET /api/search?q=rust+compiler
// 空クエリは検索前の一覧を復元する。
func (h *StoryHandler) SearchStories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	stories, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeStoryList(w, stories)
}

// ToggleFavorite はストーリーのお気に入り状態を反転する。
// POST /api/stories/:id/favorite
func (h *StoryHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	storyID, err := parseStoryID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ストーリーIDは整数で指定してください。",
			Category: "validation",
			Action:   "URLパスのIDを確認してください。",
		})
		return
	}

	story, err := h.service.ToggleFavorite(r.Context(), storyID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStoryResponse(story))
}

// MarkRead はストーリーを既読にする。冪等なので常に204を返す。
// POST /api/stories/:id/read
func (h *StoryHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	storyID, err := parseStoryID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ストーリーIDは整数で指定してください。",
			Category: "validation",
			Action:   "URLパスのIDを確認してください。",
		})
		return
	}

	if err := h.service.MarkRead(r.Context(), storyID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh は現在のビューをキャッシュをバイパスして再取得する。
// POST /api/refresh
// 検索ビューからは検索前のカテゴリに復帰した上でリフレッシュする。
func (h *StoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	stories, err := h.service.RefreshCurrentView(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeStoryList(w, stories)
}

func parseStoryID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}
