package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"traceability-dashboard/internal/alert"
	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/monitor"
	"traceability-dashboard/internal/rework"
	"traceability-dashboard/internal/search"
	"traceability-dashboard/internal/timeparse"
)

// Analytics 聚合分析
type Analytics interface {
	Collect(ctx context.Context, q analytics.Query) (*analytics.Aggregate, error)
}

// Dashboard 实时看板
type Dashboard interface {
	Dashboard(ctx context.Context) ([]monitor.Card, error)
}

// Searcher 跨工站检索
type Searcher interface {
	Search(ctx context.Context, f search.Filter) ([]search.Row, error)
	ModelNames(ctx context.Context) ([]string, error)
	Stations() []search.StationOption
	QRSummary(ctx context.Context, qr string) ([]search.QRHit, error)
	StationRecords(ctx context.Context, stationID string, limit int) ([]search.Row, error)
	Record(ctx context.Context, stationID string, prepID int64) (*search.Row, error)
}

// Reworker 返工
type Reworker interface {
	Update(ctx context.Context, req rework.Request) (*rework.Record, error)
	History(limit int) ([]rework.Record, error)
}

// Alerter 告警规则求值
type Alerter interface {
	Evaluate(stats []analytics.StationStats) []alert.Alert
}

// Deps HTTP 层依赖
// WebSocket 与 Metrics 为空时不注册对应路由
type Deps struct {
	Analytics Analytics
	Dashboard Dashboard
	Search    Searcher
	Rework    Reworker
	Alerts    Alerter
	Parser    *timeparse.Parser
	WebSocket http.HandlerFunc
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Server 装配 gin 路由
type Server struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
	engine *gin.Engine
}

// New 创建 Server 并注册全部路由
func New(deps Deps) *Server {
	if deps.Parser == nil {
		deps.Parser = timeparse.New(nil)
	}
	s := &Server{deps: deps, now: time.Now, logger: deps.Logger.With("component", "api")}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(TraceID(), RequestLogger(s.logger, "/healthz", "/metrics", "/ws"), Recovery(s.logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.WebSocket != nil {
		r.GET("/ws", gin.WrapF(deps.WebSocket))
	}

	g := r.Group("/api")
	g.GET("/stations", s.listStations)
	g.GET("/stations/:id/records", s.listStationRecords)
	g.GET("/stations/:id/records/export", s.exportStationRecords)
	g.GET("/qr-search", s.qrSummary)
	g.GET("/dashboard", s.dashboard)
	g.GET("/analytics", s.analytics)
	g.GET("/analytics/export", s.exportAnalytics)
	g.GET("/monitoring/search", s.searchRecords)
	g.GET("/monitoring/chart", s.searchChart)
	g.GET("/monitoring/export", s.exportMonitoring)
	g.GET("/model-names", s.modelNames)
	g.POST("/rework", s.updateStatus)
	g.GET("/rework/history", s.reworkHistory)
	g.GET("/rework/record/:station/:prep_id", s.reworkRecord)

	s.engine = r
	return s
}

// Handler 返回可直接挂到 http.Server 的处理器
func (s *Server) Handler() http.Handler { return s.engine }
