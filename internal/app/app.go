// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tekmint-dev/HackStack/internal/cache"
	"github.com/tekmint-dev/HackStack/internal/comment"
	"github.com/tekmint-dev/HackStack/internal/config"
	"github.com/tekmint-dev/HackStack/internal/database"
	"github.com/tekmint-dev/HackStack/internal/handler"
	"github.com/tekmint-dev/HackStack/internal/hn"
	"github.com/tekmint-dev/HackStack/internal/logger"
	"github.com/tekmint-dev/HackStack/internal/metrics"
	"github.com/tekmint-dev/HackStack/internal/repository"
	"github.com/tekmint-dev/HackStack/internal/security"
	"github.com/tekmint-dev/HackStack/internal/story"
	"github.com/tekmint-dev/HackStack/internal/worker/cleanup"
)

// cleanupCheckInterval はクリーンアップの実行判定間隔。
// 1日1回の実行保証はサービス側のガードが行うため、判定自体は短い間隔でよい。
const cleanupCheckInterval = time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("hn_api_base_url", cfg.HNAPIBaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はワイヤリング済みのドメインサービス一式。
type services struct {
	story          *story.Service
	comment        *comment.Service
	metrics        *metrics.Collector
	metricsHandler http.Handler
}

// buildServices はDB接続から全ドメインサービスをワイヤリングする。
func buildServices(cfg *config.Config, db *sql.DB) *services {
	// 1. リポジトリの初期化
	storyRepo := repository.NewPostgresStoryRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	readStateRepo := repository.NewPostgresReadStateRepo(db)

	// 2. リモートAPIクライアントの初期化
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	hnClient := hn.NewClient(httpClient, slog.Default(), hn.ClientConfig{
		BaseURL:   cfg.HNAPIBaseURL,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})
	searchClient := hn.NewSearchClient(httpClient, slog.Default(), hn.SearchConfig{
		Endpoint:    cfg.SearchAPIURL,
		MinComments: cfg.SearchMinComments,
		MaxHits:     cfg.SearchMaxHits,
	})

	// 3. キャッシュ・セキュリティ・メトリクスの初期化
	remoteCache := cache.NewRemoteCache(cfg.StoryCacheTTL, cfg.CommentCacheTTL)
	sanitizer := security.NewContentSanitizer()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	storyService := story.NewService(
		storyRepo, commentRepo, readStateRepo,
		hnClient, searchClient, remoteCache, sanitizer, collector,
		slog.Default(),
		story.ServiceConfig{
			HydrateMaxConcurrent: cfg.HydrateMaxConcurrent,
			CommentRetentionDays: cfg.CommentRetentionDays,
		},
	)

	treeBuilder := comment.NewTreeBuilder(
		commentRepo, hnClient, remoteCache, sanitizer, collector,
		slog.Default(),
		comment.TreeConfig{
			PageSize:            cfg.CommentPageSize,
			MaxComments:         cfg.MaxCommentsPerStory,
			StoreTTL:            cfg.CommentStoreTTL,
			LoadMoreInterval:    cfg.LoadMoreInterval,
			FetchMaxConcurrent:  cfg.HydrateMaxConcurrent,
			ExpandMaxConcurrent: cfg.ReplyMaxConcurrent,
			ExpandMaxRetries:    cfg.ReplyMaxRetries,
			ExpandRetryDelay:    cfg.ReplyRetryDelay,
		},
	)
	commentService := comment.NewService(
		storyRepo, hnClient, sanitizer, treeBuilder, slog.Default(),
	)

	return &services{
		story:          storyService,
		comment:        commentService,
		metrics:        collector,
		metricsHandler: metrics.Handler(registry),
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// クリーンアップスケジューラはバックグラウンドで定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. サービスのワイヤリング
	svcs := buildServices(cfg, db)

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Collector:         svcs.metrics,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		StoryService:      svcs.story,
		CommentService:    svcs.comment,
		MetricsHandler:    svcs.metricsHandler,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 5. クリーンアップスケジューラをバックグラウンドで起動
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()

	scheduler := cleanup.NewScheduler(svcs.story, slog.Default())
	go scheduler.Start(schedulerCtx, cleanupCheckInterval)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	schedulerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// HTTPサーバーを持たず、保持期限切れコメントの削除のみを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	svcs := buildServices(cfg, db)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("retention_days", cfg.CommentRetentionDays),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := cleanup.NewScheduler(svcs.story, slog.Default())
	scheduler.Start(ctx, cleanupCheckInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
