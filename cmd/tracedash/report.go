package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"traceability-dashboard/internal/alert"
	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/export"
)

var reportOpts struct {
	start   string
	end     string
	station string
	status  string
	model   string
	format  string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "计算一次分析聚合并输出 JSON 或 CSV",
	RunE:  withApp(runReport),
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.start, "start", "", "起始日期 YYYY-MM-DD (默认 7 天前)")
	f.StringVar(&reportOpts.end, "end", "", "结束日期 YYYY-MM-DD (默认今天)")
	f.StringVar(&reportOpts.station, "station", analytics.FilterAll, "工站 ID 或 all")
	f.StringVar(&reportOpts.status, "status", analytics.FilterAll, "OK / NG / Pending 或 all")
	f.StringVar(&reportOpts.model, "model", analytics.FilterAll, "型号或 all")
	f.StringVar(&reportOpts.format, "format", "json", "json | csv")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, a *app) error {
	if reportOpts.format != "json" && reportOpts.format != "csv" {
		return fmt.Errorf("unsupported format %q", reportOpts.format)
	}
	start, end := analytics.DateRange(reportOpts.start, reportOpts.end, time.Now(), a.loc)
	agg, err := newEngine(a).Collect(cmd.Context(), analytics.Query{
		Start:   start,
		End:     end,
		Station: reportOpts.station,
		Status:  reportOpts.status,
		Model:   reportOpts.model,
	})
	if err != nil {
		return errs.Wrap(err, "collect analytics")
	}

	out := cmd.OutOrStdout()
	if reportOpts.format == "csv" {
		return export.WriteAnalyticsCSV(out, agg)
	}

	evaluator, err := alert.New(a.cfg.Alerts, a.logger)
	if err != nil {
		return errs.Wrap(err, "compile alert rules")
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errs.Wrap(enc.Encode(struct {
		*analytics.Aggregate
		Alerts []alert.Alert `json:"alerts"`
	}{agg, evaluator.Evaluate(agg.Stations)}), "write report")
}
