// Package security はコンテンツのサニタイズ機能を提供する。
//
// ContentSanitizerService はリモートAPIから取得したコメント・ストーリー本文のHTMLを
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// リモートから取得した本文の保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 本文は構築後に変更されないため、結果は呼び出し元でキャッシュ可能。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（純粋関数）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, i, em, b, strong, pre, code, blockquote, ul, ol, li
//     （リモートAPIの本文マークアップに現れるタグセット）
//   - aタグ: href属性のみ許可し、rel="nofollow noreferrer noopener" と
//     target="_blank" を強制付与する
//   - scriptやiframe、on*イベント属性は許可リスト外のため自動的に除去される
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "i", "em", "b", "strong",
		"pre", "code", "blockquote",
		"ul", "ol", "li",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
