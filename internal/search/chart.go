package search

import (
	"sort"
	"time"

	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/types"
)

const bucketSize = 5 * time.Minute

// Bucket 一个 5 分钟时间桶
type Bucket struct {
	Label string `json:"label"` // HH:MM
	analytics.Counts
}

// Breakdown 按工站或型号的分组计数
type Breakdown struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	analytics.Counts
}

// ChartData 检索结果的图表数据
type ChartData struct {
	Timeline []Bucket         `json:"timeline"`
	Stations []Breakdown      `json:"stations"`
	Models   []Breakdown      `json:"models"`
	Summary  analytics.Counts `json:"summary"`
}

// Chart 将检索结果聚合为图表数据
// 时间桶按 loc 下的 HH:MM 标签排序；没有时间戳的记录只计入汇总与分组
func Chart(rows []Row, loc *time.Location) ChartData {
	if loc == nil {
		loc = time.UTC
	}
	buckets := make(map[string]*analytics.Counts)
	stations := make(map[string]*Breakdown)
	var stationOrder []string
	models := make(map[string]*analytics.Counts)

	data := ChartData{}
	for _, r := range rows {
		data.Summary.Add(r.Status)

		if r.Timestamp != nil {
			label := r.Timestamp.In(loc).Truncate(bucketSize).Format("15:04")
			c, ok := buckets[label]
			if !ok {
				c = &analytics.Counts{}
				buckets[label] = c
			}
			c.Add(r.Status)
		}

		b, ok := stations[r.StationID]
		if !ok {
			b = &Breakdown{Key: r.StationID, Name: r.StationName}
			stations[r.StationID] = b
			stationOrder = append(stationOrder, r.StationID)
		}
		b.Add(r.Status)

		if r.Model != "" && r.Model != types.PlaceholderModel {
			c, ok := models[r.Model]
			if !ok {
				c = &analytics.Counts{}
				models[r.Model] = c
			}
			c.Add(r.Status)
		}
	}

	data.Timeline = make([]Bucket, 0, len(buckets))
	for label, c := range buckets {
		data.Timeline = append(data.Timeline, Bucket{Label: label, Counts: *c})
	}
	sort.Slice(data.Timeline, func(i, j int) bool { return data.Timeline[i].Label < data.Timeline[j].Label })

	data.Stations = make([]Breakdown, 0, len(stationOrder))
	for _, id := range stationOrder {
		data.Stations = append(data.Stations, *stations[id])
	}

	data.Models = make([]Breakdown, 0, len(models))
	for name, c := range models {
		data.Models = append(data.Models, Breakdown{Key: name, Name: name, Counts: *c})
	}
	sort.Slice(data.Models, func(i, j int) bool { return data.Models[i].Key < data.Models[j].Key })
	return data
}
