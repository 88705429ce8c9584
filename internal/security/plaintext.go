package security

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText はHTML断片からタグを取り除いたプレーンテキストを抽出する。
// コメント一覧のプレビュー表示用で、ブロック要素の境界は空白1つに潰す。
// パース不能な入力は入力文字列をそのまま返す。
func ExtractText(fragment string) string {
	if fragment == "" {
		return ""
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), nil)
	if err != nil {
		return fragment
	}

	var b strings.Builder
	for _, n := range nodes {
		collectText(n, &b)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// collectText はノードを深さ優先で走査してテキストノードを収集する。
func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style":
			return
		case "p", "br", "li", "blockquote", "pre":
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
