package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/search"
	"traceability-dashboard/internal/types"
)

const timeLayout = "2006-01-02 15:04:05"

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + "%" }

// WriteAnalyticsCSV 导出分析结果：汇总区、工站明细区、记录明细区，区块之间空一行
func WriteAnalyticsCSV(w io.Writer, agg *analytics.Aggregate) error {
	if agg == nil {
		return fmt.Errorf("export: nil aggregate")
	}
	cw := csv.NewWriter(w)
	s := agg.Summary

	blocks := [][][]string{
		{
			{"Summary"},
			{"Period", agg.Start.Format(timeLayout), agg.End.Format(timeLayout)},
			{"Total", strconv.Itoa(s.Total)},
			{"OK", strconv.Itoa(s.OK)},
			{"NG", strconv.Itoa(s.NG)},
			{"Pending", strconv.Itoa(s.Pending)},
			{"Yield", pct(s.YieldRate)},
			{"Active Stations", fmt.Sprintf("%d/%d", s.ActiveStations, s.TotalStations)},
			{"Avg Cycle Time (min)", strconv.FormatFloat(s.AvgCycleTime, 'f', 2, 64)},
			{oeeLabel(agg.OEE.Operation), pct(agg.OEE.Overall.OEE)},
		},
		stationBlock(agg.Stations),
		recordBlock(agg.Records),
	}
	for i, block := range blocks {
		if i > 0 {
			if err := cw.Write([]string{}); err != nil {
				return errs.Wrap(err, "写入 CSV")
			}
		}
		if err := cw.WriteAll(block); err != nil {
			return errs.Wrap(err, "写入 CSV")
		}
	}
	cw.Flush()
	return errs.Wrap(cw.Error(), "写入 CSV")
}

func oeeLabel(op string) string {
	if op == "" {
		return "OEE"
	}
	return "OEE (" + op + ")"
}

func stationBlock(stats []analytics.StationStats) [][]string {
	rows := [][]string{
		{"Station Breakdown"},
		{"Station", "Operation", "Total", "OK", "NG", "Pending", "Yield", "Active", "Avg Cycle Time (min)"},
	}
	for _, st := range stats {
		rows = append(rows, []string{
			st.Name, st.Operation,
			strconv.Itoa(st.Total), strconv.Itoa(st.OK), strconv.Itoa(st.NG), strconv.Itoa(st.Pending),
			pct(st.YieldRate), strconv.FormatBool(st.Active),
			strconv.FormatFloat(st.AvgCycleTime, 'f', 2, 64),
		})
	}
	return rows
}

func recordBlock(recs []analytics.DetailRecord) [][]string {
	rows := [][]string{
		{"Detailed Records"},
		{"Timestamp", "Station", "QR", "Model", "Status", "Shift", "Cycle Time (min)"},
	}
	for _, r := range recs {
		cycle := types.PlaceholderCode
		if r.CycleTime != nil {
			cycle = strconv.FormatFloat(*r.CycleTime, 'f', 2, 64)
		}
		rows = append(rows, []string{
			r.Timestamp.Format(timeLayout), r.StationName, r.QR, r.Model,
			string(r.Status), string(r.Shift), cycle,
		})
	}
	return rows
}

// WriteStationCSV 导出单个工站的记录列表；装配工站输出三路 QR 码，其余输出检测值
func WriteStationCSV(w io.Writer, kind types.StationKind, rows []search.Row) error {
	cw := csv.NewWriter(w)
	header := []string{"ID", "QR Code", "Model", "Prep Timestamp", "Post Timestamp", "Status", "Gauge Values"}
	if kind == types.KindAssembly {
		header = []string{"ID", "QR Internal", "QR External", "QR Housing", "Model", "Timestamp", "Status"}
	}
	if err := cw.Write(header); err != nil {
		return errs.Wrap(err, "写入 CSV")
	}
	for _, r := range rows {
		ts := r.TimeText
		if r.Timestamp != nil {
			ts = r.Timestamp.Format(timeLayout)
		}
		id := strconv.FormatInt(r.PrepID, 10)
		rec := []string{id, r.QR, r.Model, ts, r.PostTime, string(r.Status), gaugeText(r.Values)}
		if kind == types.KindAssembly {
			rec = []string{id, r.QRInternal, r.QRExternal, r.QRHousing, r.Model, ts, string(r.Status)}
		}
		if err := cw.Write(rec); err != nil {
			return errs.Wrap(err, "写入 CSV")
		}
	}
	cw.Flush()
	return errs.Wrap(cw.Error(), "写入 CSV")
}

// gaugeText 检测值以分号连接，空槽位跳过；没有检测值时为 -
func gaugeText(values []*float64) string {
	var parts []string
	for _, v := range values {
		if v != nil {
			parts = append(parts, strconv.FormatFloat(*v, 'f', 3, 64))
		}
	}
	if len(parts) == 0 {
		return types.PlaceholderCode
	}
	return strings.Join(parts, "; ")
}

// Filename 按导出类型与时间生成下载文件名
func Filename(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}
