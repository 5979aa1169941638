package monitor

import (
	"context"
	"log/slog"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/matcher"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

// DefaultActiveWindow 工站最新记录距今不超过该时长即视为在线
// 比轮询周期宽得多，避免状态抖动
const DefaultActiveWindow = 21 * time.Minute

// Source 监控所需的数据能力
type Source interface {
	Latest(ctx context.Context, d station.Descriptor) (*types.PrepRecord, error)
	Count(ctx context.Context, d station.Descriptor) (int64, error)
	matcher.PostResolver
}

// LatestRecord 工站最新一条记录的摘要
type LatestRecord struct {
	ID        int64        `json:"id"`
	QR        string       `json:"qr"`
	Model     string       `json:"model"`
	Timestamp *time.Time   `json:"timestamp"`
	TimeText  string       `json:"time_text"`
	Status    types.Status `json:"status"`
	HasPost   bool         `json:"has_post"`
	Values    []*float64   `json:"values,omitempty"`
}

// Card 看板上的单个工站卡片
type Card struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      types.StationKind `json:"kind"`
	Operation string            `json:"operation"`
	Address   string            `json:"address"`
	Active    bool              `json:"active"`
	Records   int64             `json:"records"`
	Latest    *LatestRecord     `json:"latest"`
	Error     string            `json:"error,omitempty"`
}

// Monitor 判断工站在线状态并生成看板卡片
type Monitor struct {
	registry *station.Registry
	source   Source
	matcher  *matcher.Matcher
	parser   *timeparse.Parser
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New 创建 Monitor；window 非正时使用 21 分钟
func New(registry *station.Registry, source Source, parser *timeparse.Parser, window time.Duration, logger *slog.Logger) *Monitor {
	if window <= 0 {
		window = DefaultActiveWindow
	}
	if parser == nil {
		parser = timeparse.New(nil)
	}
	return &Monitor{
		registry: registry,
		source:   source,
		matcher:  matcher.New(source),
		parser:   parser,
		window:   window,
		now:      time.Now,
		logger:   logger.With("component", "monitor"),
	}
}

// Registry 返回工站目录
func (m *Monitor) Registry() *station.Registry { return m.registry }

// IsActive 最新记录的时间不早于 now-window 时为 true
// 没有记录或时间无法解析时为 false；读取失败返回错误
func (m *Monitor) IsActive(ctx context.Context, d station.Descriptor) (bool, error) {
	latest, err := m.source.Latest(ctx, d)
	if err != nil {
		return false, errs.Wrapf(err, "读取工站 %s 最新记录", d.ID)
	}
	return m.activeAt(latest), nil
}

func (m *Monitor) activeAt(latest *types.PrepRecord) bool {
	if latest == nil {
		return false
	}
	at, ok := m.parser.Normalize(latest.Time)
	if !ok {
		return false
	}
	return !at.Before(m.now().Add(-m.window))
}

// Card 生成单个工站的看板卡片，读取失败时卡片带 Error 字段而不返回错误
func (m *Monitor) Card(ctx context.Context, d station.Descriptor) Card {
	card := Card{ID: d.ID, Name: d.Name, Kind: d.Kind, Operation: d.Operation, Address: d.Address}

	latest, err := m.source.Latest(ctx, d)
	if err != nil {
		m.logger.Warn("读取工站最新记录失败", "station_id", d.ID, "error", errs.Loggable(err))
		card.Error = "无法读取工站记录"
		return card
	}
	card.Active = m.activeAt(latest)

	if card.Records, err = m.source.Count(ctx, d); err != nil {
		m.logger.Warn("统计工站记录失败", "station_id", d.ID, "error", errs.Loggable(err))
	}
	if latest == nil {
		return card
	}

	res, err := m.matcher.Match(ctx, *latest, d)
	if err != nil {
		m.logger.Warn("匹配下料记录失败", "station_id", d.ID, "error", errs.Loggable(err))
		res = matcher.Result{Status: types.StatusPending}
	}
	lr := &LatestRecord{
		ID:       latest.ID,
		QR:       matcher.PrimaryQR(*latest, d.Kind),
		Model:    matcher.ModelName(*latest, d.Kind),
		TimeText: latest.Time.String(),
		Status:   res.Status,
		HasPost:  res.Post != nil,
	}
	if at, ok := m.parser.Normalize(latest.Time); ok {
		lr.Timestamp = &at
	}
	if res.Post != nil {
		lr.Values = res.Post.Values
	}
	card.Latest = lr
	return card
}

// Dashboard 为目录中每个工站生成卡片，顺序与目录一致
func (m *Monitor) Dashboard(ctx context.Context) ([]Card, error) {
	stations := m.registry.All()
	cards := make([]Card, 0, len(stations))
	for _, d := range stations {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, "生成看板已取消")
		}
		cards = append(cards, m.Card(ctx, d))
	}
	return cards, nil
}
