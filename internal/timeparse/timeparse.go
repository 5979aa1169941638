package timeparse

import (
	"strings"
	"time"

	"traceability-dashboard/internal/types"
)

// 工控机写入的文本格式，日/月/年，12 小时制
var dayFirstLayouts = []string{
	"2/1/2006, 3:04:05 PM",
	"2/1/2006 3:04:05 PM",
}

// 部分设备使用美式 月/日/年
var monthFirstLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"1/2/2006 3:04:05 PM",
}

// 类 ISO 以及短横线分隔的回退格式，小数秒在解析时自动接受
var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02",
}

// DisplayLayout 模拟器与种子数据写入文本时间戳所用的格式
const DisplayLayout = "02/01/2006, 03:04:05 PM"

// Parser 将异构的时间戳统一解析为带时区的时间
// 不带时区的文本按 loc 解释
type Parser struct {
	loc *time.Location
}

// New 创建解析器，loc 为 nil 时使用本地时区
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// Location 返回解析器使用的时区
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Normalize 解析记录中的原始时间戳
// 原生时间原样返回；文本依次尝试各格式，全部失败返回 false
func (p *Parser) Normalize(raw types.RawTime) (time.Time, bool) {
	if raw.Value != nil {
		if raw.Value.IsZero() {
			return time.Time{}, false
		}
		return *raw.Value, true
	}
	return p.ParseText(raw.Text)
}

// ParseText 解析文本时间戳，对任意垃圾输入都不会 panic
func (p *Parser) ParseText(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}

	upper := strings.ToUpper(s)
	for _, layout := range dayFirstLayouts {
		if t, err := time.ParseInLocation(layout, upper, p.loc); err == nil {
			return t, true
		}
	}
	for _, layout := range monthFirstLayouts {
		if t, err := time.ParseInLocation(layout, upper, p.loc); err == nil {
			return t, true
		}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, true
		}
	}
	// 严格 ISO-8601，末尾 Z 视为 UTC
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Format 按工控机文本格式输出时间
func (p *Parser) Format(t time.Time) string {
	return t.In(p.loc).Format(DisplayLayout)
}
