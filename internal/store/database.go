package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

// Open 按配置打开数据库
// sqlite 用于开发、测试与模拟器；生产环境的工站表位于 PostgreSQL
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if err := ensureSQLiteDirectory(cfg.DSN); err != nil {
			return nil, err
		}
		db, err = gorm.Open(gormsqlite.Open(sqliteDSN(cfg.DSN)), gcfg)
		if err != nil {
			return nil, errs.Wrap(err, "打开 sqlite 数据库")
		}
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, errs.Wrap(err, "打开 postgres 数据库")
		}
	default:
		return nil, fmt.Errorf("不支持的数据库驱动 %q", cfg.Driver)
	}
	logger.Info("数据库已连接", "component", "store", "driver", cfg.Driver)
	return db, nil
}

// 模拟器与看板可能同时访问同一个 sqlite 文件
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func ensureSQLiteDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "创建 sqlite 目录 %q", dir)
	}
	return nil
}

// Migrate 为工站目录中缺失的表建表
// 仅用于开发环境与模拟器，生产库的表结构由外部系统维护
func Migrate(ctx context.Context, db *gorm.DB, stations []station.Descriptor) error {
	for _, d := range stations {
		for table, row := range tableShapes(d) {
			if err := db.WithContext(ctx).Table(table).AutoMigrate(row); err != nil {
				return errs.Wrapf(err, "建表 %s", table)
			}
		}
	}
	return nil
}

// tableShapes 返回工站各表对应的行结构
func tableShapes(d station.Descriptor) map[string]any {
	out := make(map[string]any, 2)
	switch d.Kind {
	case types.KindStandard:
		out[d.PrepTable] = &standardPrepRow{}
		if d.PostTable != "" {
			out[d.PostTable] = &standardPostRow{}
		}
	case types.KindWashingLoad, types.KindWashingUnload:
		out[d.PrimaryTable()] = &washingRow{}
	case types.KindAssembly:
		out[d.PrepTable] = &assemblyRow{}
	case types.KindLeakTest:
		out[d.PrepTable] = &leakPrepRow{}
		out[d.PostTable] = &leakPostRow{}
	case types.KindPainting:
		out[d.PrepTable] = &paintPrepRow{}
		out[d.PostTable] = &paintPostRow{}
	case types.KindLubrication:
		out[d.PrepTable] = &lubPrepRow{}
		out[d.PostTable] = &lubPostRow{}
	}
	return out
}
