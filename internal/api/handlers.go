package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"traceability-dashboard/internal/alert"
	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/export"
	"traceability-dashboard/internal/rework"
	"traceability-dashboard/internal/search"
	"traceability-dashboard/internal/types"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultHistoryLimit = 50
	defaultTimeFilter   = "1hour"
)

type analyticsResponse struct {
	*analytics.Aggregate
	Alerts []alert.Alert `json:"alerts"`
}

func (s *Server) listStations(c *gin.Context) {
	ok(c, s.deps.Search.Stations())
}

func (s *Server) dashboard(c *gin.Context) {
	cards, err := s.deps.Dashboard.Dashboard(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, cards)
}

// analyticsQuery 解析 start_date / end_date / station / status / model
func (s *Server) analyticsQuery(c *gin.Context) analytics.Query {
	start, end := analytics.DateRange(c.Query("start_date"), c.Query("end_date"), s.now(), s.deps.Parser.Location())
	return analytics.Query{
		Start:   start,
		End:     end,
		Station: c.Query("station"),
		Status:  c.Query("status"),
		Model:   c.Query("model"),
	}
}

func (s *Server) analytics(c *gin.Context) {
	agg, err := s.deps.Analytics.Collect(c.Request.Context(), s.analyticsQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	alerts := []alert.Alert{}
	if s.deps.Alerts != nil {
		alerts = s.deps.Alerts.Evaluate(agg.Stations)
	}
	ok(c, analyticsResponse{Aggregate: agg, Alerts: alerts})
}

func (s *Server) exportAnalytics(c *gin.Context) {
	if format := c.DefaultQuery("format", "csv"); format != "csv" {
		s.respondError(c, errs.ErrValidation("unsupported export format").WithDetail("format", format))
		return
	}
	agg, err := s.deps.Analytics.Collect(c.Request.Context(), s.analyticsQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteAnalyticsCSV(&buf, agg); err != nil {
		s.respondError(c, errs.ErrInternal(err))
		return
	}
	s.attachment(c, export.Filename("analytics", "csv", s.now()), contentTypeCSV, buf.Bytes())
}

// searchFilter 解析 qr / model / station / status / 时间窗 / limit
// 同时给出 start_date 与 end_date 时按日期检索，否则按 time_filter (默认 1hour)，
// time_filter=all 表示不限时间
func (s *Server) searchFilter(c *gin.Context) (search.Filter, error) {
	f := search.Filter{
		QR:      c.Query("qr"),
		Model:   c.Query("model"),
		Station: c.Query("station"),
		Status:  c.Query("status"),
	}
	now := s.now()
	if from, to, ok := analytics.CustomRange(c.Query("start_date"), c.Query("end_date"), now, s.deps.Parser.Location()); ok {
		f.From, f.To = from, to
	} else if tf := c.DefaultQuery("time_filter", defaultTimeFilter); tf != analytics.FilterAll {
		f.From, f.To = analytics.TimeFilter(tf, now)
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errs.ErrValidation("limit must be a non-negative integer").WithDetail("limit", raw)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) search(c *gin.Context) ([]search.Row, bool) {
	f, err := s.searchFilter(c)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	rows, err := s.deps.Search.Search(c.Request.Context(), f)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	if rows == nil {
		rows = []search.Row{}
	}
	return rows, true
}

func (s *Server) searchRecords(c *gin.Context) {
	if rows, found := s.search(c); found {
		ok(c, gin.H{"records": rows, "count": len(rows)})
	}
}

func (s *Server) searchChart(c *gin.Context) {
	if rows, found := s.search(c); found {
		ok(c, search.Chart(rows, s.deps.Parser.Location()))
	}
}

func (s *Server) exportMonitoring(c *gin.Context) {
	rows, found := s.search(c)
	if !found {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteMonitoringExcel(&buf, rows); err != nil {
		s.respondError(c, errs.ErrInternal(err))
		return
	}
	s.attachment(c, export.Filename("monitoring", "xlsx", s.now()), contentTypeXLSX, buf.Bytes())
}

func (s *Server) attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) modelNames(c *gin.Context) {
	names, err := s.deps.Search.ModelNames(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, names)
}

func (s *Server) qrSummary(c *gin.Context) {
	qr := c.Query("qr")
	hits, err := s.deps.Search.QRSummary(c.Request.Context(), qr)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, gin.H{"qr": qr, "results": hits})
}

// positiveQuery 读取可选的正整数参数，缺省时返回 0
func positiveQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.ErrValidation(name+" must be a positive integer").WithDetail(name, raw)
	}
	return n, nil
}

func (s *Server) stationRecords(c *gin.Context) ([]search.Row, bool) {
	limit, err := positiveQuery(c, "limit")
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	rows, err := s.deps.Search.StationRecords(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	if rows == nil {
		rows = []search.Row{}
	}
	return rows, true
}

func (s *Server) listStationRecords(c *gin.Context) {
	if rows, found := s.stationRecords(c); found {
		ok(c, gin.H{"station": c.Param("id"), "records": rows, "count": len(rows)})
	}
}

func (s *Server) exportStationRecords(c *gin.Context) {
	rows, found := s.stationRecords(c)
	if !found {
		return
	}
	var kind types.StationKind
	for _, opt := range s.deps.Search.Stations() {
		if opt.ID == c.Param("id") {
			kind = opt.Kind
			break
		}
	}
	var buf bytes.Buffer
	if err := export.WriteStationCSV(&buf, kind, rows); err != nil {
		s.respondError(c, errs.ErrInternal(err))
		return
	}
	s.attachment(c, export.Filename(c.Param("id")+"_data", "csv", s.now()), contentTypeCSV, buf.Bytes())
}

func (s *Server) reworkRecord(c *gin.Context) {
	raw := c.Param("prep_id")
	prepID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || prepID <= 0 {
		s.respondError(c, errs.ErrValidation("prep_id must be a positive integer").WithDetail("prep_id", raw))
		return
	}
	row, err := s.deps.Search.Record(c.Request.Context(), c.Param("station"), prepID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, row)
}

func (s *Server) updateStatus(c *gin.Context) {
	var req rework.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errs.ErrValidation("invalid request body").WithDetail("error", err.Error()))
		return
	}
	rec, err := s.deps.Rework.Update(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, rec)
}

func (s *Server) reworkHistory(c *gin.Context) {
	limit, err := positiveQuery(c, "limit")
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	history, err := s.deps.Rework.History(limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if history == nil {
		history = []rework.Record{}
	}
	ok(c, history)
}
