package analytics

import (
	"math"

	"traceability-dashboard/internal/types"
)

const (
	// DefaultLoadingTime 每个班次的负荷时间 (分钟)
	DefaultLoadingTime = 430.0
	// fallbackCycleTime 工序代码不在标准节拍表中时使用
	fallbackCycleTime = 1.0
)

// Counts 一个班次或总体的计数
type Counts struct {
	Total   int `json:"total"`
	OK      int `json:"ok"`
	NG      int `json:"ng"`
	Pending int `json:"pending"`
}

// Add 按状态计数，未知状态计入 Pending
func (c *Counts) Add(s types.Status) {
	c.Total++
	switch s {
	case types.StatusOK:
		c.OK++
	case types.StatusNG:
		c.NG++
	default:
		c.Pending++
	}
}

// OEEResult 设备综合效率，百分比字段均在 [0,100] 且保留两位小数
type OEEResult struct {
	Availability    float64 `json:"availability"`
	Performance     float64 `json:"performance"`
	Quality         float64 `json:"quality"`
	OEE             float64 `json:"oee"`
	DowntimeMinutes float64 `json:"downtime_minutes"`
	ExpectedParts   float64 `json:"expected_parts"`
	ActualParts     int     `json:"actual_parts"`
	PartsDeficit    float64 `json:"parts_deficit"`
}

// OEECalculator 按固定负荷时间与标准节拍表计算 OEE
type OEECalculator struct {
	LoadingTime float64
	CycleTimes  map[string]float64
}

// NewOEECalculator 创建计算器，loadingTime 非正时使用 430 分钟
func NewOEECalculator(loadingTime float64, cycleTimes map[string]float64) OEECalculator {
	if loadingTime <= 0 {
		loadingTime = DefaultLoadingTime
	}
	return OEECalculator{LoadingTime: loadingTime, CycleTimes: cycleTimes}
}

// StandardCycleTime 返回工序的标准节拍 (分钟)，未知工序为 1.0
func (c OEECalculator) StandardCycleTime(op string) float64 {
	if ct, ok := c.CycleTimes[op]; ok {
		return ct
	}
	return fallbackCycleTime
}

// Compute 计算一个班次 (或总体) 的 OEE
//
// 性能率 = 运行时间 / 运行时间，只要运行时间为正即恒为 100，沿用现有报表口径。
func (c OEECalculator) Compute(counts Counts, op string) OEEResult {
	ct := c.StandardCycleTime(op)
	loading := c.LoadingTime

	completed := counts.OK + counts.NG
	quality := 0.0
	if completed > 0 {
		quality = float64(counts.OK) / float64(completed) * 100
	}

	expected := float64(counts.Total)
	if ct != 0 {
		expected = loading / ct
	}
	deficit := math.Max(0, expected-float64(counts.Total))
	downtime := deficit * ct
	operating := loading - downtime

	availability := clampPercent(operating / loading * 100)
	performance := 0.0
	if operating > 0 {
		performance = clampPercent(operating / operating * 100)
	}
	quality = clampPercent(quality)
	oee := availability * performance * quality / 10000

	return OEEResult{
		Availability:    round2(availability),
		Performance:     round2(performance),
		Quality:         round2(quality),
		OEE:             round2(oee),
		DowntimeMinutes: round2(downtime),
		ExpectedParts:   round2(expected),
		ActualParts:     counts.Total,
		PartsDeficit:    round2(deficit),
	}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
