package export

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/search"
)

// MonitoringSheet 监控导出的工作表名称
const MonitoringSheet = "Monitoring"

const gaugeSlots = 6

// MonitoringHeader 监控导出的表头，覆盖所有工站类别的字段
func MonitoringHeader() []string {
	h := []string{
		"Station", "Stage", "Timestamp", "Post Time", "Status",
		"QR", "QR Internal", "QR External", "QR Housing", "QR Piston", "QR Housing New",
		"Model", "Model Internal", "Model External", "Model Housing", "Model Piston",
		"Prev Status", "Pre Status", "Match Status",
	}
	for i := 1; i <= gaugeSlots; i++ {
		h = append(h, "Value"+strconv.Itoa(i))
	}
	return h
}

func monitoringRow(r search.Row) []any {
	ts := r.TimeText
	if r.Timestamp != nil {
		ts = r.Timestamp.Format(timeLayout)
	}
	row := []any{
		r.StationName, r.Stage, ts, r.PostTime, string(r.Status),
		r.QR, r.QRInternal, r.QRExternal, r.QRHousing, r.QRPiston, r.QRHousingNew,
		r.Model, r.ModelInternal, r.ModelExternal, r.ModelHousing, r.ModelPiston,
		r.PrevStatus, r.PreStatus, r.MatchStatus,
	}
	for i := 0; i < gaugeSlots; i++ {
		if i < len(r.Values) && r.Values[i] != nil {
			row = append(row, *r.Values[i])
		} else {
			row = append(row, nil)
		}
	}
	return row
}

// WriteMonitoringExcel 将检索结果写为 xlsx，首行为冻结的表头
func WriteMonitoringExcel(w io.Writer, rows []search.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MonitoringSheet); err != nil {
		return errs.Wrap(err, "创建工作表")
	}
	header := MonitoringHeader()
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := f.SetSheetRow(MonitoringSheet, "A1", &hdr); err != nil {
		return errs.Wrap(err, "写入表头")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errs.Wrap(err, "创建样式")
	}
	if err := f.SetRowStyle(MonitoringSheet, 1, 1, bold); err != nil {
		return errs.Wrap(err, "设置表头样式")
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errs.Wrap(err, "定位单元格")
		}
		vals := monitoringRow(r)
		if err := f.SetSheetRow(MonitoringSheet, cell, &vals); err != nil {
			return errs.Wrapf(err, "写入第 %d 行", i+2)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return errs.Wrap(err, "定位列")
	}
	if err := f.SetColWidth(MonitoringSheet, "A", lastCol, 16); err != nil {
		return errs.Wrap(err, "设置列宽")
	}
	if err := f.SetPanes(MonitoringSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return errs.Wrap(err, "冻结表头")
	}
	return errs.Wrap(f.Write(w), "写入 xlsx")
}
