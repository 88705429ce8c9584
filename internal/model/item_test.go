package model

import (
	"testing"
	"time"
)

// --- カテゴリ・ソートモードのテスト ---

func TestDefaultSortFor_Best(t *testing.T) {
	if got := DefaultSortFor(CategoryBest); got != SortPoints {
		t.Errorf("best のデフォルトソート = %q, want %q", got, SortPoints)
	}
}

func TestDefaultSortFor_NewAndJob(t *testing.T) {
	if got := DefaultSortFor(CategoryNew); got != SortDate {
		t.Errorf("new のデフォルトソート = %q, want %q", got, SortDate)
	}
	if got := DefaultSortFor(CategoryJob); got != SortDate {
		t.Errorf("job のデフォルトソート = %q, want %q", got, SortDate)
	}
}

func TestDefaultSortFor_Others(t *testing.T) {
	for _, c := range []Category{CategoryTop, CategoryAsk, CategoryShow, CategorySearch, CategoryFavorites} {
		if got := DefaultSortFor(c); got != SortDefault {
			t.Errorf("%s のデフォルトソート = %q, want %q", c, got, SortDefault)
		}
	}
}

// --- フィルタリング規則のテスト ---

// TestComment_ShouldDisplay_DeadLeaf は返信を持たないdead/削除済みコメントが
// フィルタされることを検証する。
func TestComment_ShouldDisplay_DeadLeaf(t *testing.T) {
	dead := &Comment{ID: 1, IsDead: true, ChildIDs: []int{}}
	if dead.ShouldDisplay() {
		t.Error("返信のないdeadコメントは表示対象であってはならない")
	}

	deleted := &Comment{ID: 2, IsDeleted: true}
	if deleted.ShouldDisplay() {
		t.Error("返信のない削除済みコメントは表示対象であってはならない")
	}
}

// TestComment_ShouldDisplay_DeadWithChildren は返信を持つdeadコメントが
// プレースホルダとして残ることを検証する。
func TestComment_ShouldDisplay_DeadWithChildren(t *testing.T) {
	c := &Comment{ID: 1, IsDead: true, ChildIDs: []int{2, 3}}
	if !c.ShouldDisplay() {
		t.Error("返信を持つdeadコメントはプレースホルダとして表示対象であるべき")
	}
}

func TestComment_ShouldDisplay_Normal(t *testing.T) {
	c := &Comment{ID: 1, BodyHTML: "<p>hello</p>"}
	if !c.ShouldDisplay() {
		t.Error("通常のコメントは表示対象であるべき")
	}
}

// --- 相対時刻導出のテスト ---

func TestRelativeTimeFrom(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"1分未満", now.Add(-30 * time.Second), "たった今"},
		{"分単位", now.Add(-5 * time.Minute), "5分前"},
		{"時間単位", now.Add(-3 * time.Hour), "3時間前"},
		{"日単位", now.Add(-48 * time.Hour), "2日前"},
		{"月単位", now.Add(-40 * 24 * time.Hour), "1ヶ月前"},
		{"年単位", now.Add(-2 * 365 * 24 * time.Hour), "2年前"},
	}

	for _, tt := range tests {
		if got := RelativeTimeFrom(tt.t, now); got != tt.want {
			t.Errorf("%s: RelativeTimeFrom = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// --- CommentNode のテスト ---

func TestCommentNode_CountNodes(t *testing.T) {
	root := NewCommentNode(&Comment{ID: 1}, nil)
	child1 := NewCommentNode(&Comment{ID: 2}, root)
	child2 := NewCommentNode(&Comment{ID: 3}, root)
	grandchild := NewCommentNode(&Comment{ID: 4}, child1)
	child1.Children = []*CommentNode{grandchild}
	root.Children = []*CommentNode{child1, child2}

	if got := root.CountNodes(); got != 4 {
		t.Errorf("CountNodes = %d, want 4", got)
	}
	if grandchild.Parent != child1 {
		t.Error("孫ノードのParentは非所有の親参照を保持すべき")
	}
}
