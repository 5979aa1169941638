package analytics

import (
	"time"

	"traceability-dashboard/internal/types"
)

// ShiftOf 按本地小时划分班次，区间左闭右开：A [6,14)，B [14,22)，C 其余 (跨午夜)
// 调用方负责先把时间转换到工厂时区；零值时间返回 false
func ShiftOf(t time.Time) (types.Shift, bool) {
	if t.IsZero() {
		return "", false
	}
	switch h := t.Hour(); {
	case h >= 6 && h < 14:
		return types.ShiftA, true
	case h >= 14 && h < 22:
		return types.ShiftB, true
	default:
		return types.ShiftC, true
	}
}

// CycleMinutes 返回上下料之间的分钟数
// 任一时间缺失时返回 false；非正值原样返回，由调用方剔除
func CycleMinutes(prep, post time.Time) (float64, bool) {
	if prep.IsZero() || post.IsZero() {
		return 0, false
	}
	return post.Sub(prep).Minutes(), true
}
