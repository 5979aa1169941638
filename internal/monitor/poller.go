package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/event"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/util"
)

// DefaultPollInterval 默认轮询周期
const DefaultPollInterval = 2 * time.Second

// observation 一轮轮询中单个工站的观测结果
type observation struct {
	desc    station.Descriptor
	records int64
	active  bool
	err     error
}

// Poller 周期性检查各工站的记录数与在线状态
// 只有发生变化时才向事件总线发布事件，由处理器负责指标、看板和日志
type Poller struct {
	monitor    *Monitor
	bus        *event.Bus
	interval   time.Duration
	maxWorkers int
	mu         sync.Mutex
	records    map[string]int64 // 上一轮的记录数
	active     map[string]bool  // 上一轮的在线状态
	stopped    bool             // WaitForCompletion 之后不再开始新一轮
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewPoller 创建一个新的 Poller 实例
func NewPoller(m *Monitor, bus *event.Bus, interval time.Duration, maxWorkers int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Poller{
		monitor:    m,
		bus:        bus,
		interval:   interval,
		maxWorkers: maxWorkers,
		records:    make(map[string]int64),
		active:     make(map[string]bool),
		logger:     logger.With("component", "poller"),
	}
}

// Start 启动轮询循环，阻塞直到 ctx 取消
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("开始轮询工站", "interval", p.interval, "workers", p.maxWorkers)
	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick 执行一轮轮询：并发观测所有工站，再与上一轮比较并发布事件
// 停机后调用直接返回
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	traceID := util.NewTraceID()
	roundCtx := util.ContextWithTraceID(ctx, traceID)

	stations := p.monitor.registry.All()
	results := make([]observation, len(stations))
	workerPool := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup

	for i, d := range stations {
		if ctx.Err() != nil {
			break
		}
		// 获取 worker 凭证（控制对数据库的并发读取）
		workerPool <- struct{}{}
		wg.Add(1)
		go func(index int, d station.Descriptor) {
			defer wg.Done()
			defer func() { <-workerPool }()
			results[index] = p.observe(roundCtx, d)
		}(i, d)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	p.diff(results, traceID)
}

func (p *Poller) observe(ctx context.Context, d station.Descriptor) observation {
	obs := observation{desc: d}
	if obs.records, obs.err = p.monitor.source.Count(ctx, d); obs.err != nil {
		return obs
	}
	obs.active, obs.err = p.monitor.IsActive(ctx, d)
	return obs
}

func (p *Poller) diff(results []observation, traceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.monitor.now()
	for _, obs := range results {
		d := obs.desc
		if d.ID == "" {
			continue
		}
		if obs.err != nil {
			p.logger.Warn("轮询工站失败", "station_id", d.ID, "trace_id", traceID, "error", errs.Loggable(obs.err))
			continue
		}

		prev, seen := p.records[d.ID]
		if !seen || prev != obs.records {
			p.records[d.ID] = obs.records
			p.bus.Publish(event.Event{
				Type:        event.RecordsChanged,
				StationID:   d.ID,
				StationName: d.Name,
				Records:     obs.records,
				Delta:       obs.records - prev,
				At:          now,
			})
		}

		wasActive, seen := p.active[d.ID]
		if !seen || wasActive != obs.active {
			p.active[d.ID] = obs.active
			typ := event.StationIdle
			if obs.active {
				typ = event.StationActivated
			}
			p.bus.Publish(event.Event{Type: typ, StationID: d.ID, StationName: d.Name, At: now})
		}
	}
}

// Snapshot 返回上一轮观测到的记录数，供 HTTP 层判断是否需要刷新
func (p *Poller) Snapshot() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.records))
	for id, n := range p.records {
		out[id] = n
	}
	return out
}

// WaitForCompletion 拒绝新的轮询并等待正在进行的一轮结束，用于优雅停机
func (p *Poller) WaitForCompletion() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}
