// Package hn はHacker News APIとの連携機能を提供する。
// 単一アイテム取得・カテゴリ別ID一覧取得・全文検索のクライアントを含む。
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// Item はリモートAPIが返すアイテム（ストーリーまたはコメント）の生レコード。
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Kids        []int  `json:"kids"`
	Parent      int    `json:"parent"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// categoryEndpoints はカテゴリとID一覧エンドポイントの対応表。
// favoritesとsearchはリモートAPIに対応するエンドポイントを持たない
// （favoritesは永続ストアのみ、searchは検索クライアントのみが供給する）。
var categoryEndpoints = map[model.Category]string{
	model.CategoryTop:  "topstories",
	model.CategoryNew:  "newstories",
	model.CategoryBest: "beststories",
	model.CategoryAsk:  "askstories",
	model.CategoryShow: "showstories",
	model.CategoryJob:  "jobstories",
}

// ClientConfig はClientの設定パラメータ。
type ClientConfig struct {
	// BaseURL はFirebase APIのベースURL。
	BaseURL string
	// RateLimit は秒間リクエスト数の上限。レート制限に敏感なAPIを保護する。
	RateLimit float64
	// RateBurst はバーストサイズ。
	RateBurst int
}

// Client はHacker News Firebase APIのクライアント。
// 各呼び出しは独立したネットワークラウンドトリップであり、
// x/time/rateのリミッターで呼び出し頻度を抑制する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// GetItem は指定IDのアイテムを取得する。
// 存在しないID・デコード不能なレスポンスの場合は(nil, nil)を返し、
// バッチ処理の呼び出し元が該当アイテムのみスキップできるようにする。
// ネットワーク失敗（非成功ステータス含む）はエラーを返す。この層ではリトライしない。
func (c *Client) GetItem(ctx context.Context, id int) (*Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/item/%d.json", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if model.IsCancellation(err) {
			return nil, err
		}
		return nil, model.NewNetworkFailureError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkFailureError(fmt.Sprintf("item %d: status %d", id, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkFailureError(err.Error())
	}

	// 存在しないIDに対してAPIはJSONのnullを返す
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		// デコード失敗は該当アイテムのみ欠落させ、バッチ全体は継続する
		c.logger.Warn("アイテムのデコードに失敗しました",
			slog.Int("item_id", id),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	return &item, nil
}

// GetIDList は指定カテゴリのランク順ID一覧を取得する。
// 返却順はAPIの提示順であり、意味を持つため保持すること。
func (c *Client) GetIDList(ctx context.Context, category model.Category) ([]int, error) {
	endpoint, ok := categoryEndpoints[category]
	if !ok {
		return nil, model.NewInvalidCategoryError(string(category))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s.json", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if model.IsCancellation(err) {
			return nil, err
		}
		return nil, model.NewNetworkFailureError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkFailureError(fmt.Sprintf("%s: status %d", endpoint, resp.StatusCode))
	}

	var ids []int
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, model.NewNetworkFailureError(fmt.Sprintf("%s: %s", endpoint, err.Error()))
	}

	return ids, nil
}
