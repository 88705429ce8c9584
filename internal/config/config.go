// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Remote API
	HNAPIBaseURL         string
	SearchAPIURL         string
	FetchTimeout         time.Duration
	APIRateLimit         float64 // リモートAPIへの秒間リクエスト上限
	APIRateBurst         int
	HydrateMaxConcurrent int // ストーリー一括取得の最大並列数

	// Remote Cache
	StoryCacheTTL   time.Duration // カテゴリ別ストーリー一覧のTTL
	CommentCacheTTL time.Duration // リモートキャッシュのコメントTTL

	// Comment Tree
	CommentPageSize     int           // 1ページあたりのトップレベルコメント数
	MaxCommentsPerStory int           // セッションあたりのトップレベルコメント上限
	CommentStoreTTL     time.Duration // 永続ストア側のコメント鮮度TTL
	LoadMoreInterval    time.Duration // ページフェッチ間の最小スロットル間隔
	ReplyMaxConcurrent  int           // 返信展開の最大同時実行数
	ReplyMaxRetries     int           // 返信展開の最大リトライ回数
	ReplyRetryDelay     time.Duration // リトライ再投入までの遅延

	// Search
	SearchMinComments int // 検索結果に要求する最小コメント数
	SearchMaxHits     int // 1回の検索の最大ヒット数

	// Cleanup
	CommentRetentionDays int // コメントの保持日数

	// Server
	ServerPort        string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	// Optional fields with defaults
	cfg.HNAPIBaseURL = getEnvString("HN_API_BASE_URL", "https://hacker-news.firebaseio.com/v0")
	cfg.SearchAPIURL = getEnvString("SEARCH_API_URL", "https://hn.algolia.com/api/v1/search")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 20)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 40)
	cfg.HydrateMaxConcurrent = getEnvInt("HYDRATE_MAX_CONCURRENT", 20)

	cfg.StoryCacheTTL = getEnvDuration("STORY_CACHE_TTL", 5*time.Minute)
	cfg.CommentCacheTTL = getEnvDuration("COMMENT_CACHE_TTL", 5*time.Minute)

	cfg.CommentPageSize = getEnvInt("COMMENT_PAGE_SIZE", 30)
	cfg.MaxCommentsPerStory = getEnvInt("MAX_COMMENTS_PER_STORY", 300)
	cfg.CommentStoreTTL = getEnvDuration("COMMENT_STORE_TTL", 24*time.Hour)
	cfg.LoadMoreInterval = getEnvDuration("LOAD_MORE_INTERVAL", 500*time.Millisecond)
	cfg.ReplyMaxConcurrent = getEnvInt("REPLY_MAX_CONCURRENT", 2)
	cfg.ReplyMaxRetries = getEnvInt("REPLY_MAX_RETRIES", 2)
	cfg.ReplyRetryDelay = getEnvDuration("REPLY_RETRY_DELAY", time.Second)

	cfg.SearchMinComments = getEnvInt("SEARCH_MIN_COMMENTS", 5)
	cfg.SearchMaxHits = getEnvInt("SEARCH_MAX_HITS", 50)

	cfg.CommentRetentionDays = getEnvInt("COMMENT_RETENTION_DAYS", 7)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
