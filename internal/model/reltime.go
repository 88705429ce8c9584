package model

import (
	"fmt"
	"time"
)

// RelativeTimeFrom は基準時刻nowから見たtの相対時刻表現を返す。
// ストーリー・コメントの構築/更新時に1回だけ導出され、読み取りごとには再計算されない。
func RelativeTimeFrom(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}

	switch {
	case d < time.Minute:
		return "たった今"
	case d < time.Hour:
		return fmt.Sprintf("%d分前", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d時間前", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d日前", int(d.Hours()/24))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%dヶ月前", int(d.Hours()/(24*30)))
	default:
		return fmt.Sprintf("%d年前", int(d.Hours()/(24*365)))
	}
}
