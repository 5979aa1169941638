package alert

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/event"
)

// DefaultCheckInterval 告警巡检间隔
const DefaultCheckInterval = time.Minute

// Collector 提供聚合结果
type Collector interface {
	Collect(ctx context.Context, q analytics.Query) (*analytics.Aggregate, error)
}

// Watcher 定期对当天数据求值告警规则
// 同一规则在同一工站上持续命中时只发布一次 AlertRaised，恢复后再次命中会重新发布
type Watcher struct {
	collector Collector
	evaluator *Evaluator
	bus       *event.Bus
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	firing map[string]Alert
}

// NewWatcher 创建告警巡检器
func NewWatcher(collector Collector, evaluator *Evaluator, bus *event.Bus, interval time.Duration, loc *time.Location, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if loc == nil {
		loc = time.Local
	}
	return &Watcher{
		collector: collector,
		evaluator: evaluator,
		bus:       bus,
		interval:  interval,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With("component", "alert-watcher"),
		firing:    make(map[string]Alert),
	}
}

// Start 启动巡检循环，ctx 取消时退出
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("告警巡检已启动", "interval", w.interval.String(), "rules", w.evaluator.Len())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("告警巡检已停止")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check 执行一次巡检，返回本轮新命中的告警
func (w *Watcher) Check(ctx context.Context) []Alert {
	now := w.now().In(w.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.loc)
	agg, err := w.collector.Collect(ctx, analytics.Query{Start: start, End: now})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("告警巡检聚合失败", "error", errs.Loggable(err))
		}
		return nil
	}

	current := w.evaluator.Evaluate(agg.Stations)
	w.mu.Lock()
	next := make(map[string]Alert, len(current))
	var fresh []Alert
	for _, a := range current {
		key := a.Rule + "/" + a.StationID
		next[key] = a
		if _, ok := w.firing[key]; !ok {
			fresh = append(fresh, a)
		}
	}
	w.firing = next
	w.mu.Unlock()

	for _, a := range fresh {
		if w.bus != nil {
			w.bus.Publish(event.Event{
				Type:        event.AlertRaised,
				StationID:   a.StationID,
				StationName: a.StationName,
				Rule:        a.Rule,
				Message:     a.Message,
				At:          now,
			})
		}
	}
	return fresh
}

// Firing 返回当前处于命中状态的告警
func (w *Watcher) Firing() []Alert {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Alert, 0, len(w.firing))
	for _, a := range w.firing {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		return out[i].StationID < out[j].StationID
	})
	return out
}
