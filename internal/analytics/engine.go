package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/matcher"
	"traceability-dashboard/internal/metrics"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

const (
	// FilterAll 不过滤
	FilterAll = "all"
	// DefaultDetailLimit 明细记录保留条数
	DefaultDetailLimit = 100

	dateLayout = "2006-01-02"
)

// RecordSource 分析引擎需要的只读数据能力
type RecordSource interface {
	ReadAll(ctx context.Context, d station.Descriptor) ([]types.PrepRecord, error)
	matcher.PostResolver
}

// Options 引擎的可调参数
type Options struct {
	DetailLimit      int
	DefaultOperation string
}

// Engine 聚合引擎：每次调用独立读取快照并返回新的聚合结果，无共享可变状态
type Engine struct {
	registry    *station.Registry
	source      RecordSource
	matcher     *matcher.Matcher
	parser      *timeparse.Parser
	oee         OEECalculator
	defaultOp   string
	detailLimit int
	logger      *slog.Logger
}

// NewEngine 创建聚合引擎
func NewEngine(registry *station.Registry, source RecordSource, parser *timeparse.Parser, oee OEECalculator, opts Options, logger *slog.Logger) *Engine {
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = DefaultDetailLimit
	}
	if opts.DefaultOperation == "" {
		opts.DefaultOperation = station.OpCNC
	}
	if parser == nil {
		parser = timeparse.New(nil)
	}
	return &Engine{
		registry:    registry,
		source:      source,
		matcher:     matcher.New(source),
		parser:      parser,
		oee:         oee,
		defaultOp:   opts.DefaultOperation,
		detailLimit: opts.DetailLimit,
		logger:      logger.With("component", "analytics"),
	}
}

// Query 聚合参数；Station/Status/Model 为空或 "all" 时不过滤，Start/End 为零值时不设界
type Query struct {
	Start   time.Time
	End     time.Time
	Station string
	Status  string
	Model   string
}

// Summary 总览
type Summary struct {
	Counts
	YieldRate      float64 `json:"yield_rate"`
	ActiveStations int     `json:"active_stations"`
	TotalStations  int     `json:"total_stations"`
	AvgCycleTime   float64 `json:"avg_cycle_time"`
	CycleSamples   int     `json:"cycle_samples"`
}

// StationStats 单个工站的统计
type StationStats struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      types.StationKind `json:"kind"`
	Operation string            `json:"operation"`
	Counts
	YieldRate    float64 `json:"yield_rate"`
	Active       bool    `json:"active"`
	AvgCycleTime float64 `json:"avg_cycle_time"`
}

// ModelStats 按型号统计
type ModelStats struct {
	Model string `json:"model"`
	Counts
}

// ShiftStats 按班次统计
type ShiftStats struct {
	Shift types.Shift `json:"shift"`
	Counts
}

// DailyCount 每日 OK/NG 时间线
type DailyCount struct {
	Date string `json:"date"`
	OK   int    `json:"ok"`
	NG   int    `json:"ng"`
}

// HourlyCount 一天中各小时的产量 (所有状态)
type HourlyCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// DailyYield 每日良率
type DailyYield struct {
	Date      string  `json:"date"`
	YieldRate float64 `json:"yield_rate"`
}

// DailyCycleTime 每日实际平均节拍与标准节拍对比
type DailyCycleTime struct {
	Date     string  `json:"date"`
	Actual   float64 `json:"actual"`
	Standard float64 `json:"standard"`
	Samples  int     `json:"samples"`
}

// OEEReport 总体与分班次 OEE
// Operation 为空表示筛选的工站不存在，此时按兜底节拍计算
type OEEReport struct {
	Operation         string                    `json:"operation"`
	StandardCycleTime float64                   `json:"standard_cycle_time"`
	LoadingTime       float64                   `json:"loading_time"`
	Overall           OEEResult                 `json:"overall"`
	Shifts            map[types.Shift]OEEResult `json:"shifts"`
}

// DetailRecord 明细记录
type DetailRecord struct {
	StationID   string       `json:"station_id"`
	StationName string       `json:"station_name"`
	PrepID      int64        `json:"prep_id"`
	PostID      *int64       `json:"post_id"`
	QR          string       `json:"qr"`
	Model       string       `json:"model"`
	Timestamp   time.Time    `json:"timestamp"`
	Status      types.Status `json:"status"`
	Shift       types.Shift  `json:"shift"`
	CycleTime   *float64     `json:"cycle_time"`
}

// Aggregate 一次聚合的完整结果，所有字段始终存在
type Aggregate struct {
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Summary    Summary          `json:"summary"`
	Stations   []StationStats   `json:"station_stats"`
	Models     []ModelStats     `json:"model_stats"`
	Shifts     []ShiftStats     `json:"shift_stats"`
	Timeline   []DailyCount     `json:"timeline"`
	Hourly     []HourlyCount    `json:"hourly"`
	YieldTrend []DailyYield     `json:"yield_trend"`
	CycleTimes []DailyCycleTime `json:"cycle_times"`
	OEE        OEEReport        `json:"oee"`
	Records    []DetailRecord   `json:"records"`
}

// Collect 按查询条件扫描工站并聚合
// 单个工站读取失败只记录日志并跳过；ctx 取消时丢弃部分结果并返回错误
func (e *Engine) Collect(ctx context.Context, q Query) (*Aggregate, error) {
	started := time.Now()
	stations := e.registry.Select(filterValue(q.Station))
	acc := newAccumulator(e.parser.Location())

	for _, d := range stations {
		if err := ctx.Err(); err != nil {
			metrics.AggregationDuration.WithLabelValues("canceled").Observe(time.Since(started).Seconds())
			return nil, errs.Wrap(err, "聚合已取消")
		}
		scan, err := e.scanStation(ctx, d, q)
		if err != nil {
			if ctx.Err() != nil {
				metrics.AggregationDuration.WithLabelValues("canceled").Observe(time.Since(started).Seconds())
				return nil, errs.Wrap(ctx.Err(), "聚合已取消")
			}
			metrics.StationReadFailures.WithLabelValues(d.ID).Inc()
			e.logger.Warn("读取工站记录失败，已跳过", "station_id", d.ID, "error", errs.Loggable(err))
			continue
		}
		acc.merge(scan, e.oee.StandardCycleTime(d.Operation))
	}

	// 指定工站时按该工站的工序计算 OEE，工站不存在时工序留空
	op := e.defaultOp
	if filterValue(q.Station) != "" {
		op = ""
		if len(stations) == 1 {
			op = stations[0].Operation
		}
	}
	agg := acc.finish(e.oee, op, e.detailLimit)
	agg.Start, agg.End = q.Start, q.End

	metrics.AggregationDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())
	e.logger.Debug("聚合完成", "stations", len(stations), "total", agg.Summary.Total, "duration", time.Since(started))
	return agg, nil
}

// item 一条在范围内且通过过滤的记录
type item struct {
	prep  types.PrepRecord
	res   matcher.Result
	at    time.Time
	model string
	shift types.Shift
	cycle *float64
}

type stationScan struct {
	desc   station.Descriptor
	active bool
	items  []item
}

func (e *Engine) scanStation(ctx context.Context, d station.Descriptor, q Query) (stationScan, error) {
	recs, err := e.source.ReadAll(ctx, d)
	if err != nil {
		return stationScan{}, errs.Wrapf(err, "读取工站 %s", d.ID)
	}
	scan := stationScan{desc: d, active: len(recs) > 0}
	statusFilter := filterValue(q.Status)
	modelFilter := filterValue(q.Model)

	for i, rec := range recs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return stationScan{}, err
			}
		}
		at, ok := e.parser.Normalize(rec.Time)
		if !ok {
			continue
		}
		if (!q.Start.IsZero() && at.Before(q.Start)) || (!q.End.IsZero() && at.After(q.End)) {
			continue
		}
		model := matcher.ModelName(rec, d.Kind)
		if modelFilter != "" && model != modelFilter {
			continue
		}
		res, err := e.matcher.Match(ctx, rec, d)
		if err != nil {
			return stationScan{}, err
		}
		if statusFilter != "" && !strings.EqualFold(string(res.Status), statusFilter) {
			continue
		}

		it := item{prep: rec, res: res, at: at, model: model}
		it.shift, _ = ShiftOf(at.In(e.parser.Location()))
		if done, ok := matcher.CompletionTime(rec, res, d.Kind); ok {
			if finished, ok := e.parser.Normalize(done); ok {
				if minutes, ok := CycleMinutes(at, finished); ok && minutes > 0 {
					it.cycle = &minutes
				}
			}
		}
		scan.items = append(scan.items, it)
	}
	return scan, nil
}

func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, FilterAll) {
		return ""
	}
	return v
}

type cycleBucket struct {
	actual   float64
	standard float64
	n        int
}

type accumulator struct {
	loc      *time.Location
	totals   Counts
	stations []StationStats
	models   map[string]*Counts
	shifts   map[types.Shift]*Counts
	daily    map[string]*DailyCount
	hourly   [24]int
	cycles   map[string]*cycleBucket
	records  []DetailRecord
	active   int
	cycleSum float64
	cycleN   int
}

func newAccumulator(loc *time.Location) *accumulator {
	acc := &accumulator{
		loc:    loc,
		models: make(map[string]*Counts),
		shifts: make(map[types.Shift]*Counts),
		daily:  make(map[string]*DailyCount),
		cycles: make(map[string]*cycleBucket),
	}
	for _, s := range types.Shifts {
		acc.shifts[s] = &Counts{}
	}
	return acc
}

func (a *accumulator) merge(scan stationScan, standard float64) {
	d := scan.desc
	row := StationStats{ID: d.ID, Name: d.Name, Kind: d.Kind, Operation: d.Operation, Active: scan.active}
	if scan.active {
		a.active++
	}
	var stationCycle float64
	var stationCycleN int

	for _, it := range scan.items {
		status := it.res.Status
		local := it.at.In(a.loc)
		date := local.Format(dateLayout)

		a.totals.Add(status)
		row.Add(status)

		mc, ok := a.models[it.model]
		if !ok {
			mc = &Counts{}
			a.models[it.model] = mc
		}
		mc.Add(status)

		if sc, ok := a.shifts[it.shift]; ok {
			sc.Add(status)
		}

		day, ok := a.daily[date]
		if !ok {
			day = &DailyCount{Date: date}
			a.daily[date] = day
		}
		switch status {
		case types.StatusOK:
			day.OK++
		case types.StatusNG:
			day.NG++
		}
		a.hourly[local.Hour()]++

		if it.cycle != nil {
			cb, ok := a.cycles[date]
			if !ok {
				cb = &cycleBucket{}
				a.cycles[date] = cb
			}
			cb.actual += *it.cycle
			cb.standard += standard
			cb.n++
			stationCycle += *it.cycle
			stationCycleN++
			a.cycleSum += *it.cycle
			a.cycleN++
		}

		rec := DetailRecord{
			StationID:   d.ID,
			StationName: d.Name,
			PrepID:      it.prep.ID,
			QR:          matcher.PrimaryQR(it.prep, d.Kind),
			Model:       it.model,
			Timestamp:   it.at,
			Status:      status,
			Shift:       it.shift,
			CycleTime:   it.cycle,
		}
		if it.res.Post != nil {
			rec.PostID = types.Ptr(it.res.Post.ID)
		}
		a.records = append(a.records, rec)
	}

	row.YieldRate = yieldRate(row.OK, row.NG)
	if stationCycleN > 0 {
		row.AvgCycleTime = round2(stationCycle / float64(stationCycleN))
	}
	a.stations = append(a.stations, row)
}

func (a *accumulator) finish(calc OEECalculator, op string, detailLimit int) *Aggregate {
	agg := &Aggregate{
		Stations:   a.stations,
		Models:     make([]ModelStats, 0, len(a.models)),
		Shifts:     make([]ShiftStats, 0, len(types.Shifts)),
		Timeline:   make([]DailyCount, 0, len(a.daily)),
		Hourly:     make([]HourlyCount, 0, 24),
		YieldTrend: make([]DailyYield, 0, len(a.daily)),
		CycleTimes: make([]DailyCycleTime, 0, len(a.cycles)),
	}
	if agg.Stations == nil {
		agg.Stations = []StationStats{}
	}

	agg.Summary = Summary{
		Counts:         a.totals,
		YieldRate:      yieldRate(a.totals.OK, a.totals.NG),
		ActiveStations: a.active,
		TotalStations:  len(a.stations),
		CycleSamples:   a.cycleN,
	}
	if a.cycleN > 0 {
		agg.Summary.AvgCycleTime = round2(a.cycleSum / float64(a.cycleN))
	}

	for model, c := range a.models {
		agg.Models = append(agg.Models, ModelStats{Model: model, Counts: *c})
	}
	sort.Slice(agg.Models, func(i, j int) bool { return agg.Models[i].Model < agg.Models[j].Model })

	for _, s := range types.Shifts {
		agg.Shifts = append(agg.Shifts, ShiftStats{Shift: s, Counts: *a.shifts[s]})
	}

	dates := make([]string, 0, len(a.daily))
	for date := range a.daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		day := a.daily[date]
		agg.Timeline = append(agg.Timeline, *day)
		agg.YieldTrend = append(agg.YieldTrend, DailyYield{Date: date, YieldRate: yieldRate(day.OK, day.NG)})
		if cb, ok := a.cycles[date]; ok {
			agg.CycleTimes = append(agg.CycleTimes, DailyCycleTime{
				Date:     date,
				Actual:   round2(cb.actual / float64(cb.n)),
				Standard: round2(cb.standard / float64(cb.n)),
				Samples:  cb.n,
			})
		}
	}

	for h, n := range a.hourly {
		agg.Hourly = append(agg.Hourly, HourlyCount{Hour: h, Count: n})
	}

	// 按时间升序，保留最后 detailLimit 条
	records := a.records
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	if len(records) > detailLimit {
		records = records[len(records)-detailLimit:]
	}
	agg.Records = append([]DetailRecord{}, records...)

	agg.OEE = OEEReport{
		Operation:         op,
		StandardCycleTime: calc.StandardCycleTime(op),
		LoadingTime:       calc.LoadingTime,
		Overall:           calc.Compute(a.totals, op),
		Shifts:            make(map[types.Shift]OEEResult, len(types.Shifts)),
	}
	for _, s := range types.Shifts {
		agg.OEE.Shifts[s] = calc.Compute(*a.shifts[s], op)
	}
	return agg
}

// yieldRate OK/(OK+NG)*100，无已完成零件时为 0
func yieldRate(ok, ng int) float64 {
	if ok+ng == 0 {
		return 0
	}
	return round2(float64(ok) / float64(ok+ng) * 100)
}
