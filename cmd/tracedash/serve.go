package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"traceability-dashboard/internal/alert"
	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/api"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/event"
	"traceability-dashboard/internal/handlers"
	"traceability-dashboard/internal/monitor"
	"traceability-dashboard/internal/persistence"
	"traceability-dashboard/internal/rework"
	"traceability-dashboard/internal/search"
	"traceability-dashboard/internal/store"
	"traceability-dashboard/internal/web"
)

const shutdownTimeout = 10 * time.Second

var (
	serveMigrate       bool
	serveAlertInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP API、实时看板与告警巡检",
	RunE:  withApp(runServe),
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "启动前为缺失的工站表建表 (仅开发环境)")
	serveCmd.Flags().DurationVar(&serveAlertInterval, "alert-interval", alert.DefaultCheckInterval, "告警巡检间隔")
	rootCmd.AddCommand(serveCmd)
}

func newEngine(a *app) *analytics.Engine {
	oee := analytics.NewOEECalculator(a.cfg.OEE.LoadingTimeMinutes, a.cfg.OEE.StandardCycleTimes)
	return analytics.NewEngine(a.registry, a.store, a.parser, oee, analytics.Options{
		DetailLimit:      a.cfg.DetailLimit,
		DefaultOperation: a.cfg.OEE.DefaultOperation,
	}, a.logger)
}

func runServe(cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := a.logger

	if serveMigrate {
		if err := store.Migrate(ctx, a.db, a.registry.All()); err != nil {
			return errs.Wrap(err, "migrate")
		}
	}

	// 1. 事件总线与实时看板
	bus := event.NewBus()
	hub := web.NewHub(logger)
	go hub.Run(ctx)
	tracker := web.NewStateTracker(hub, a.registry.All())
	handlers.RegisterEventHandlers(bus, tracker, logger)

	// 2. 分析、监控、检索
	engine := newEngine(a)
	mon := monitor.New(a.registry, a.store, a.parser, a.cfg.ActiveWindow, logger)
	poller := monitor.NewPoller(mon, bus, a.cfg.PollInterval, a.cfg.PollWorkers, logger)
	searcher := search.New(a.registry, a.store, a.parser, a.cfg.SearchLimit, logger)

	// 3. 返工审计日志
	wal, err := persistence.NewWAL(a.cfg.AuditLog)
	if err != nil {
		return errs.Wrap(err, "open audit log")
	}
	defer wal.Close()
	reworkSvc := rework.NewService(a.registry, a.store, wal, bus, logger)

	// 4. 告警
	evaluator, err := alert.New(a.cfg.Alerts, logger)
	if err != nil {
		return errs.Wrap(err, "compile alert rules")
	}
	watcher := alert.NewWatcher(engine, evaluator, bus, serveAlertInterval, a.loc, logger)

	srv := api.New(api.Deps{
		Analytics: engine,
		Dashboard: mon,
		Search:    searcher,
		Rework:    reworkSvc,
		Alerts:    evaluator,
		Parser:    a.parser,
		WebSocket: hub.ServeWs,
		Metrics:   promhttp.Handler(),
		Logger:    logger,
	})
	httpSrv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("=== 产线追溯看板启动 ===", "addr", a.cfg.ListenAddr, "stations", a.registry.Len(), "timezone", a.loc.String())

	go poller.Start(ctx)
	go watcher.Start(ctx)
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	return waitForShutdown(ctx, logger, cancel, httpSrv, poller, serveErr)
}

// waitForShutdown 等待系统信号或服务错误以实现优雅停机
func waitForShutdown(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc, srv *http.Server, poller *monitor.Poller, serveErr <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("接收到停机信号，正在优雅关闭...", "signal", sig.String())
	case err := <-serveErr:
		logger.Error("HTTP 服务异常退出", "error", errs.Loggable(err))
		runErr = errs.Wrap(err, "http server")
	case <-ctx.Done():
		logger.Info("上下文已取消，正在关闭...")
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP 服务关闭超时", "error", errs.Loggable(err))
	}
	poller.WaitForCompletion()
	logger.Info("看板已安全退出")
	return runErr
}
