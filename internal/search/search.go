package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/matcher"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/store"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

// DefaultLimit 每个工站最多返回的记录数
const DefaultLimit = 500

// Source 检索所需的数据访问能力
type Source interface {
	Query(ctx context.Context, d station.Descriptor, q store.Query) ([]types.PrepRecord, error)
	ModelNames(ctx context.Context, d station.Descriptor) ([]string, error)
	CountByQR(ctx context.Context, d station.Descriptor, qr string) (store.QRCount, error)
	PrepByID(ctx context.Context, d station.Descriptor, id int64) (*types.PrepRecord, error)
	matcher.PostResolver
}

// Filter 检索条件，零值字段表示不过滤
type Filter struct {
	QR      string
	Model   string
	Station string
	Status  string
	From    time.Time
	To      time.Time
	Limit   int
}

// Row 一条检索结果，不同类别工站的字段展平到同一结构
// 型号类缺省为 N/A，QR 码与状态类缺省为 -
type Row struct {
	StationID   string            `json:"station_id"`
	StationName string            `json:"station_name"`
	Kind        types.StationKind `json:"kind"`
	Stage       string            `json:"stage,omitempty"`

	PrepID    int64      `json:"prep_id"`
	PostID    *int64     `json:"post_id"`
	Timestamp *time.Time `json:"timestamp"`
	TimeText  string     `json:"time_text"`
	PostTime  string     `json:"post_time"`

	QR           string `json:"qr"`
	QRInternal   string `json:"qr_internal"`
	QRExternal   string `json:"qr_external"`
	QRHousing    string `json:"qr_housing"`
	QRPiston     string `json:"qr_piston"`
	QRHousingNew string `json:"qr_housing_new"`

	Model         string `json:"model"`
	ModelInternal string `json:"model_internal"`
	ModelExternal string `json:"model_external"`
	ModelHousing  string `json:"model_housing"`
	ModelPiston   string `json:"model_piston"`

	PrevStatus  string       `json:"prev_status"`
	PreStatus   string       `json:"pre_status"`
	MatchStatus string       `json:"match_status"`
	Status      types.Status `json:"status"`

	Values []*float64 `json:"values,omitempty"`
}

// StationOption 工站下拉选项
type StationOption struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Kind types.StationKind `json:"kind"`
}

// Searcher 跨工站检索记录
type Searcher struct {
	registry *station.Registry
	source   Source
	matcher  *matcher.Matcher
	parser   *timeparse.Parser
	limit    int
	logger   *slog.Logger
}

// New 创建 Searcher，limit <= 0 时使用 DefaultLimit
func New(registry *station.Registry, source Source, parser *timeparse.Parser, limit int, logger *slog.Logger) *Searcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Searcher{
		registry: registry,
		source:   source,
		matcher:  matcher.New(source),
		parser:   parser,
		limit:    limit,
		logger:   logger.With("component", "search"),
	}
}

// Stations 返回工站选项列表，保持目录顺序
func (s *Searcher) Stations() []StationOption {
	all := s.registry.All()
	out := make([]StationOption, 0, len(all))
	for _, d := range all {
		out = append(out, StationOption{ID: d.ID, Name: d.Name, Kind: d.Kind})
	}
	return out
}

// Search 按条件检索各工站记录，结果按时间倒序
// 单个工站读取失败时跳过该工站
func (s *Searcher) Search(ctx context.Context, f Filter) ([]Row, error) {
	limit := f.Limit
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	status := strings.TrimSpace(f.Status)

	var rows []Row
	for _, d := range s.registry.Select(f.Station) {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, "检索已取消")
		}
		recs, err := s.source.Query(ctx, d, store.Query{QR: f.QR, Model: f.Model, Limit: limit})
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(ctx.Err(), "检索已取消")
			}
			s.logger.Warn("工站检索失败，已跳过", "station_id", d.ID, "error", errs.Loggable(err))
			continue
		}
		for _, rec := range recs {
			res, err := s.matcher.Match(ctx, rec, d)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				s.logger.Warn("匹配失败", "station_id", d.ID, "prep_id", rec.ID, "error", errs.Loggable(err))
				continue
			}
			if status != "" && status != "all" && !strings.EqualFold(status, string(res.Status)) {
				continue
			}
			row := s.build(d, rec, res)
			if !inWindow(row.Timestamp, f.From, f.To) {
				continue
			}
			rows = append(rows, row)
		}
	}

	sortNewestFirst(rows)
	return rows, nil
}

// sortNewestFirst 按时间倒序，无法解析时间的记录排在最后
func sortNewestFirst(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Timestamp, rows[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

func inWindow(ts *time.Time, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	if ts == nil {
		return false
	}
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func (s *Searcher) build(d station.Descriptor, rec types.PrepRecord, res matcher.Result) Row {
	row := Row{
		StationID:     d.ID,
		StationName:   d.Name,
		Kind:          d.Kind,
		PrepID:        rec.ID,
		TimeText:      rec.Time.String(),
		PostTime:      types.PlaceholderCode,
		QR:            matcher.PrimaryQR(rec, d.Kind),
		QRInternal:    types.Or(rec.QRInternal, types.PlaceholderCode),
		QRExternal:    types.Or(rec.QRExternal, types.PlaceholderCode),
		QRHousing:     types.Or(rec.QRHousing, types.PlaceholderCode),
		QRPiston:      types.Or(rec.QRPiston, types.PlaceholderCode),
		QRHousingNew:  types.PlaceholderCode,
		Model:         matcher.ModelName(rec, d.Kind),
		ModelInternal: types.Or(rec.ModelInternal, types.PlaceholderModel),
		ModelExternal: types.Or(rec.ModelExternal, types.PlaceholderModel),
		ModelHousing:  types.Or(rec.ModelHousing, types.PlaceholderModel),
		ModelPiston:   types.Or(rec.ModelPiston, types.PlaceholderModel),
		PrevStatus:    types.Or(rec.PrevStatus, types.PlaceholderCode),
		PreStatus:     types.Or(rec.PreStatus, types.PlaceholderCode),
		MatchStatus:   types.PlaceholderCode,
		Status:        res.Status,
	}
	switch d.Kind {
	case types.KindWashingLoad:
		row.Stage = "load"
	case types.KindWashingUnload:
		row.Stage = "unload"
	}
	if t, ok := s.parser.Normalize(rec.Time); ok {
		row.Timestamp = &t
	}
	if post := res.Post; post != nil {
		row.PostID = types.Ptr(post.ID)
		if !post.Time.IsZero() {
			row.PostTime = post.Time.String()
		}
		row.QRHousingNew = types.Or(post.QRHousingNew, types.PlaceholderCode)
		row.MatchStatus = types.Or(post.MatchStatus, types.PlaceholderCode)
		row.Values = post.Values
	}
	return row
}

// ModelNames 汇总全部工站的型号，去重排序，排除空值与 N/A
func (s *Searcher) ModelNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, d := range s.registry.All() {
		names, err := s.source.ModelNames(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(ctx.Err(), "读取型号已取消")
			}
			s.logger.Warn("读取型号失败，已跳过", "station_id", d.ID, "error", errs.Loggable(err))
			continue
		}
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" || n == types.PlaceholderModel {
				continue
			}
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
