package analytics

import (
	"strconv"
	"strings"
	"time"
)

// DefaultRange 未指定或无法解析日期时使用的时间窗
const DefaultRange = 7 * 24 * time.Hour

// endOfDay 结束日期扩展到当天 23:59:59
const endOfDay = 23*time.Hour + 59*time.Minute + 59*time.Second

func parseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
}

// DateRange 解析 YYYY-MM-DD 格式的起止日期
// 结束日期扩展到当天 23:59:59；缺失起点取 now-7d，缺失终点取 now；
// 任一日期无法解析时整体回退到最近 7 天
func DateRange(start, end string, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = now.Location()
	}
	from := now.Add(-DefaultRange)
	to := now

	if strings.TrimSpace(start) != "" {
		t, err := parseDay(start, loc)
		if err != nil {
			return now.Add(-DefaultRange), now
		}
		from = t
	}
	if strings.TrimSpace(end) != "" {
		t, err := parseDay(end, loc)
		if err != nil {
			return now.Add(-DefaultRange), now
		}
		to = t.Add(endOfDay)
	}
	return from, to
}

// CustomRange 监控检索的自定义日期：起止日期都给出时返回 [start 00:00, end 23:59:59]
// 起点无法解析时取 now-1h，终点无法解析时取 now；任一日期缺失时 ok 为 false
func CustomRange(start, end string, now time.Time, loc *time.Location) (from, to time.Time, ok bool) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return time.Time{}, time.Time{}, false
	}
	if loc == nil {
		loc = now.Location()
	}
	from, to = now.Add(-time.Hour), now
	if t, err := parseDay(start, loc); err == nil {
		from = t
	}
	if t, err := parseDay(end, loc); err == nil {
		to = t.Add(endOfDay)
	}
	return from, to, true
}

// TimeFilter 解析实时监控页的相对时间过滤：15min、30min、<N>hour，其余取最近 1 小时
func TimeFilter(name string, now time.Time) (time.Time, time.Time) {
	window := time.Hour
	switch name = strings.TrimSpace(name); {
	case name == "15min":
		window = 15 * time.Minute
	case name == "30min":
		window = 30 * time.Minute
	case strings.HasSuffix(name, "hour"):
		if n, err := strconv.Atoi(strings.TrimSuffix(name, "hour")); err == nil && n > 0 {
			window = time.Duration(n) * time.Hour
		}
	}
	return now.Add(-window), now
}
