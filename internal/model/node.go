package model

// CommentNode はコメントツリー上の1ノードを表すインメモリ構造体。
// 永続化されず、ツリーのリセット（別ストーリーへの切り替え・強制リフレッシュ）で破棄される。
type CommentNode struct {
	Comment *Comment

	// Children は返信ノードの順序付きリスト。Comment.ChildIDsの順序を保持する。
	Children []*CommentNode

	// Parent は親ノードへの非所有参照。走査専用でルートノードではnil。
	Parent *CommentNode

	// HasLoadedChildren はChildIDsに対応する子ノードの取得が完了したことを示す。
	HasLoadedChildren bool

	// IsLoadingReplies は返信展開が実行中であることを示す。
	IsLoadingReplies bool

	// LoadError はリトライ上限到達後に記録される展開失敗メッセージ。
	// このノードに局所化され、兄弟ノードやツリー全体には伝播しない。
	LoadError string

	// IsCollapsed はUI上の折りたたみ状態。純粋な表示フラグでロード状態とは独立。
	IsCollapsed bool
}

// NewCommentNode はコメントをラップした新しいノードを生成する。
func NewCommentNode(c *Comment, parent *CommentNode) *CommentNode {
	return &CommentNode{
		Comment: c,
		Parent:  parent,
	}
}

// CountNodes はこのノードを根とする部分木のノード数を返す。
func (n *CommentNode) CountNodes() int {
	count := 1
	for _, child := range n.Children {
		count += child.CountNodes()
	}
	return count
}
