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

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// OpenStory はストーリーのコメントツリーを開き、最初のページを返す。
	OpenStory(ctx context.Context, storyID int, forceFresh, loadAll bool) ([]*model.CommentNode, error)
	// LoadMore は次ページのトップレベルコメントを追加取得する。
	LoadMore(ctx context.Context) ([]*model.CommentNode, error)
	// Expand は指定コメントの返信展開をキューに投入する。
	Expand(ctx context.Context, commentID int) error
	// SetCollapsed は表示上の折りたたみ状態を設定する。
	SetCollapsed(commentID int, collapsed bool) error
	// Tree は現在のツリーのスナップショットを返す。
	Tree() []*model.CommentNode
	// HasMore は未取得のトップレベルコメントが残っているかを返す。
	HasMore() bool
	// ErrorMessage は直近のページ取得エラーメッセージを返す。
	ErrorMessage() string
	// CurrentStoryID は現在開いているストーリーのIDを返す。未選択は0。
	CurrentStoryID() int
}

// CommentHandler はコメントツリーのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// --- レスポンス型 ---

// commentNodeResponse はコメントツリー上の1ノードのレスポンス。
// 返信展開は非同期のため、is_loading_repliesがtrueの間はツリーを再取得して追従する。
type commentNodeResponse struct {
	ID                int                   `json:"id"`
	Author            string                `json:"author"`
	BodyHTML          string                `json:"body_html"` // サニタイズ済みHTML
	BodyText          string                `json:"body_text"`
	PostedAt          time.Time             `json:"posted_at"`
	RelativeTime      string                `json:"relative_time"`
	Depth             int                   `json:"depth"`
	IsDeleted         bool                  `json:"is_deleted"`
	IsDead            bool                  `json:"is_dead"`
	HasChildren       bool                  `json:"has_children"`
	HasLoadedChildren bool                  `json:"has_loaded_children"`
	IsLoadingReplies  bool                  `json:"is_loading_replies"`
	LoadError         string                `json:"load_error,omitempty"`
	IsCollapsed       bool                  `json:"is_collapsed"`
	Children          []commentNodeResponse `json:"children"`
}

// commentTreeResponse はコメントツリー全体のレスポンス。
type commentTreeResponse struct {
	StoryID      int                   `json:"story_id"`
	HasMore      bool                  `json:"has_more"`
	Comments     []commentNodeResponse `json:"comments"`
	ErrorMessage string                `json:"error_message,omitempty"`
}

func toCommentNodeResponse(n *model.CommentNode) commentNodeResponse {
	resp := commentNodeResponse{
		ID:                n.Comment.ID,
		Author:            n.Comment.Author,
		BodyHTML:          n.Comment.BodyHTML,
		BodyText:          n.Comment.BodyText,
		PostedAt:          n.Comment.PostedAt,
		RelativeTime:      n.Comment.RelativeTime,
		Depth:             n.Comment.Depth,
		IsDeleted:         n.Comment.IsDeleted,
		IsDead:            n.Comment.IsDead,
		HasChildren:       n.Comment.HasChildren(),
		HasLoadedChildren: n.HasLoadedChildren,
		IsLoadingReplies:  n.IsLoadingReplies,
		LoadError:         n.LoadError,
		IsCollapsed:       n.IsCollapsed,
		Children:          make([]commentNodeResponse, 0, len(n.Children)),
	}
	for _, child := range n.Children {
		resp.Children = append(resp.Children, toCommentNodeResponse(child))
	}
	return resp
}

func (h *CommentHandler) writeTree(w http.ResponseWriter, roots []*model.CommentNode) {
	resp := commentTreeResponse{
		StoryID:      h.service.CurrentStoryID(),
		HasMore:      h.service.HasMore(),
		Comments:     make([]commentNodeResponse, 0, len(roots)),
		ErrorMessage: h.service.ErrorMessage(),
	}
	for _, root := range roots {
		resp.Comments = append(resp.Comments, toCommentNodeResponse(root))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// OpenComments はストーリーのコメントツリーを開く。
// GET /api/stories/:id/comments?fresh=true&all=true
// freshは永続ストアとキャッシュを破棄して再取得、allは全ページを一括取得する。
func (h *CommentHandler) OpenComments(w http.ResponseWriter, r *http.Request) {
	storyID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ストーリーIDは整数で指定してください。",
			Category: "validation",
			Action:   "URLパスのIDを確認してください。",
		})
		return
	}

	forceFresh := r.URL.Query().Get("fresh") == "true"
	loadAll := r.URL.Query().Get("all") == "true"

	roots, err := h.service.OpenStory(r.Context(), storyID, forceFresh, loadAll)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTree(w, roots)
}

// GetTree は現在のツリーのスナップショットを返す。
// GET /api/comments
// 非同期の返信展開の進行をポーリングするために使用する。
func (h *CommentHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	if h.service.CurrentStoryID() == 0 {
		handleServiceError(w, model.NewStoryNotSelectedError())
		return
	}
	h.writeTree(w, h.service.Tree())
}

// LoadMore は次ページのトップレベルコメントを追加取得する。
// POST /api/comments/more
// ロード中・残ページなし・スロットル期間内の呼び出しはツリーを変更せずに現状を返す。
func (h *CommentHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	roots, err := h.service.LoadMore(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTree(w, roots)
}

// ExpandComment は指定コメントの返信展開を開始する。
// POST /api/comments/:id/expand
// 展開は非同期に進行するため、レスポンスのツリーでは該当ノードが
// is_loading_replies=trueになっている場合がある。
func (h *CommentHandler) ExpandComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "コメントIDは整数で指定してください。",
			Category: "validation",
			Action:   "URLパスのIDを確認してください。",
		})
		return
	}

	if err := h.service.Expand(r.Context(), commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTree(w, h.service.Tree())
}

// collapseRequest は折りたたみ状態更新リクエストのボディ。
type collapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

// CollapseComment はコメントの折りたたみ状態を設定する。
// POST /api/comments/:id/collapse
// 純粋な表示フラグの更新であり、ロード状態には影響しない。
func (h *CommentHandler) CollapseComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "コメントIDは整数で指定してください。",
			Category: "validation",
			Action:   "URLパスのIDを確認してください。",
		})
		return
	}

	var req collapseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if err := h.service.SetCollapsed(commentID, req.Collapsed); err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTree(w, h.service.Tree())
}
