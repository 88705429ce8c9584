// Package model はドメインモデルを定義する。
package model

import (
	"context"
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: network, decode, validation, persistence, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNetworkFailure     = "NETWORK_FAILURE"
	ErrCodeDecodeFailure      = "DECODE_FAILURE"
	ErrCodeInvalidCategory    = "INVALID_CATEGORY"
	ErrCodeInvalidSort        = "INVALID_SORT"
	ErrCodeStoryNotFound      = "STORY_NOT_FOUND"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeStoryNotSelected   = "STORY_NOT_SELECTED"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
)

// NewNetworkFailureError はリモートAPI呼び出し失敗エラーを生成する。
// リモートデータソース層ではリトライしない（リトライ判断は呼び出し元が行う）。
func NewNetworkFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkFailure,
		Message:  fmt.Sprintf("リモートAPIの呼び出しに失敗しました: %s", reason),
		Category: "network",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewDecodeFailureError はレスポンスのデコード失敗エラーを生成する。
// 単一アイテムの取得では致命的だが、バッチ処理では該当アイテムのみスキップされる。
func NewDecodeFailureError(itemID int) *APIError {
	return &APIError{
		Code:     ErrCodeDecodeFailure,
		Message:  fmt.Sprintf("アイテムのデコードに失敗しました: %d", itemID),
		Category: "decode",
		Action:   "リロードしても解消しない場合は該当アイテムをスキップしてください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "カテゴリには top、new、best、ask、show、job、favorites、search のいずれかを指定してください。",
	}
}

// NewInvalidSortError は無効なソートモードエラーを生成する。
func NewInvalidSortError(sort string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("無効なソートモードです: %s", sort),
		Category: "validation",
		Action:   "ソートモードには default、date、points、favorites のいずれかを指定してください。",
	}
}

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(storyID int) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("指定されたストーリーが見つかりません: %d", storyID),
		Category: "validation",
		Action:   "ストーリーIDを確認してください。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
// ツリーにロードされていないコメントへの操作で返される。
func NewCommentNotFoundError(commentID int) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントがツリーに存在しません: %d", commentID),
		Category: "validation",
		Action:   "コメントIDを確認してください。",
	}
}

// NewStoryNotSelectedError はコメントツリー未初期化エラーを生成する。
func NewStoryNotSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotSelected,
		Message:  "コメントツリーが開かれていません。",
		Category: "validation",
		Action:   "先にストーリーのコメント一覧を開いてください。",
	}
}

// NewPersistenceFailureError は永続ストアの読み書き失敗エラーを生成する。
// 呼び出し元はログに記録した上で、空の結果などの安全なフォールバックに縮退する。
func NewPersistenceFailureError(op string) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  fmt.Sprintf("永続ストアの操作に失敗しました: %s", op),
		Category: "persistence",
		Action:   "データベース接続を確認してください。",
	}
}

// IsCancellation はエラーがコンテキストのキャンセルに起因するかを判定する。
// キャンセルはユーザー可視のエラーとして扱ってはならない。
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
