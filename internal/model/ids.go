package model

import (
	"strconv"
	"strings"
)

// EncodeIDList は子IDリストをカンマ区切り文字列にエンコードする。
// 順序は入力のまま保持される。空リストは空文字列になる。
func EncodeIDList(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// DecodeIDList はカンマ区切り文字列を子IDリストにデコードする。
// 空文字列は空リスト（nilではない）にデコードされ、EncodeIDListと往復で一致する。
// 数値として解釈できない要素は無視する。
func DecodeIDList(s string) []int {
	if s == "" {
		return []int{}
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
