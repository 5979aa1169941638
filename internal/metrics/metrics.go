package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// AggregationDuration 直方图：一次分析聚合的耗时
	// 按结果 (ok/canceled) 分类，用于发现大时间范围查询的性能问题
	AggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceability_aggregation_duration_seconds",
		Help:    "Time spent building one analytics aggregate",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// StationReadFailures 计数器：读取工站记录失败次数
	StationReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceability_station_read_failures_total",
		Help: "The number of failed reads per station",
	}, []string{"station_id"})

	// StationActive 仪表盘：工站是否在线 (1/0)
	StationActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "traceability_station_active",
		Help: "Whether the station wrote a record within the active window",
	}, []string{"station_id"})

	// StationRecords 仪表盘：工站记录总数 (上料 + 下料)
	StationRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "traceability_station_records",
		Help: "The number of records stored for each station",
	}, []string{"station_id"})

	// ReworkTotal 计数器：返工状态变更次数，按目标状态分类
	ReworkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceability_rework_updates_total",
		Help: "The total number of rework status updates",
	}, []string{"station_id", "status"})

	// AlertsFired 计数器：告警规则命中次数
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceability_alerts_fired_total",
		Help: "The number of alert rule hits",
	}, []string{"rule"})

	// WebsocketClients 仪表盘：当前连接的看板客户端数
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "traceability_websocket_clients",
		Help: "The number of connected dashboard clients",
	})

	// BroadcastsDropped 计数器：广播通道已满时丢弃的消息数
	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceability_broadcasts_dropped_total",
		Help: "The number of live updates dropped because the hub was busy",
	})
)
