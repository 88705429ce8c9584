package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tekmint-dev/HackStack/internal/model"
)

// SearchHit は全文検索エンドポイントが返す軽量ヒットレコード。
// ヒットのIDを使って正規のアイテムを一次APIから取得し直すことを想定している。
type SearchHit struct {
	ID             int
	Title          string
	URL            string
	Author         string
	Points         int
	CommentCount   int
	CreatedAtEpoch int64
	ChildIDs       []int
	BodyText       string
}

// searchResponse は検索APIのレスポンス構造。
type searchResponse struct {
	Hits []searchHitRecord `json:"hits"`
}

// searchHitRecord は検索APIの生ヒットレコード。
type searchHitRecord struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
	Children    []int  `json:"children"`
	StoryText   string `json:"story_text"`
}

// SearchConfig はSearchClientの設定パラメータ。
type SearchConfig struct {
	// Endpoint は検索APIのエンドポイントURL。
	Endpoint string
	// MinComments はヒットに要求する最小コメント数（サーバー側フィルタ）。
	MinComments int
	// MaxHits は1回の検索の最大ヒット数。
	MaxHits int
}

// SearchClient は全文検索APIのクライアント。
type SearchClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     SearchConfig
}

// NewSearchClient はSearchClientの新しいインスタンスを生成する。
func NewSearchClient(httpClient *http.Client, logger *slog.Logger, cfg SearchConfig) *SearchClient {
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = 50
	}
	return &SearchClient{
		httpClient: httpClient,
		logger:     logger,
		config:     cfg,
	}
}

// Search はクエリに一致するストーリーのヒット一覧を取得する。
// 複数語のクエリは完全一致フレーズとして引用符付きで送信する。
// 結果はサーバー側でコメント数がMinCommentsを超えるものに絞られ、MaxHits件で打ち切られる。
func (c *SearchClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	reqURL, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("検索エンドポイントURLのパースに失敗しました: %w", err)
	}

	// 複数語クエリは完全一致フレーズフィルタとして引用符で囲む
	q := query
	if strings.Contains(strings.TrimSpace(query), " ") {
		q = `"` + query + `"`
	}

	params := reqURL.Query()
	params.Set("query", q)
	params.Set("tags", "story")
	params.Set("numericFilters", fmt.Sprintf("num_comments>%d", c.config.MinComments))
	params.Set("hitsPerPage", strconv.Itoa(c.config.MaxHits))
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if model.IsCancellation(err) {
			return nil, err
		}
		c.logger.Error("検索APIの呼び出しに失敗しました",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkFailureError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkFailureError(fmt.Sprintf("search: status %d", resp.StatusCode))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, model.NewNetworkFailureError(fmt.Sprintf("search: %s", err.Error()))
	}

	hits := make([]SearchHit, 0, len(sr.Hits))
	for _, h := range sr.Hits {
		id, err := strconv.Atoi(h.ObjectID)
		if err != nil {
			// IDが数値でないヒットはスキップする
			continue
		}
		hits = append(hits, SearchHit{
			ID:             id,
			Title:          h.Title,
			URL:            h.URL,
			Author:         h.Author,
			Points:         h.Points,
			CommentCount:   h.NumComments,
			CreatedAtEpoch: h.CreatedAtI,
			ChildIDs:       h.Children,
			BodyText:       h.StoryText,
		})
	}

	return hits, nil
}
