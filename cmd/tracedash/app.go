package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/store"
	"traceability-dashboard/internal/timeparse"
)

// app 各子命令共享的组件
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	loc      *time.Location
	parser   *timeparse.Parser
	registry *station.Registry
	db       *gorm.DB
	store    *store.Store
}

// withApp 加载配置、初始化日志并打开数据库，命令结束后关闭连接
func withApp(run func(cmd *cobra.Command, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return errs.Wrap(err, "load config")
		}

		// 日志写 stderr，stdout 留给命令输出
		logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()})).
			With("command", cmd.Name())
		slog.SetDefault(logger)

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		registry, err := cfg.Registry()
		if err != nil {
			return errs.Wrap(err, "build station registry")
		}

		db, err := store.Open(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return errs.Wrap(err, "open database")
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				if err := sqlDB.Close(); err != nil {
					logger.Warn("关闭数据库连接失败", "error", errs.Loggable(err))
				}
			}
		}()

		a := &app{
			cfg:      cfg,
			logger:   logger,
			loc:      loc,
			parser:   timeparse.New(loc),
			registry: registry,
			db:       db,
			store:    store.New(db, logger),
		}
		return run(cmd, a)
	}
}
