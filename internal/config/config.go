package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	ListenAddr   string          `mapstructure:"listen_addr"`   // HTTP 监听地址
	LogLevel     string          `mapstructure:"log_level"`     // debug / info / warn / error
	Timezone     string          `mapstructure:"timezone"`      // 无时区文本时间戳按此时区解释
	Database     DatabaseConfig  `mapstructure:"database"`      // 工站记录所在数据库
	PollInterval time.Duration   `mapstructure:"poll_interval"` // 实时看板轮询间隔
	PollWorkers  int             `mapstructure:"poll_workers"`  // 轮询时并发读取的工站数
	ActiveWindow time.Duration   `mapstructure:"active_window"` // 最近记录落在此窗口内视为工站在线
	DetailLimit  int             `mapstructure:"detail_limit"`  // 分析结果中保留的明细条数
	SearchLimit  int             `mapstructure:"search_limit"`  // 检索时每个工站的最大记录数
	AuditLog     string          `mapstructure:"audit_log"`     // 返工审计日志文件
	OEE          OEEConfig       `mapstructure:"oee"`
	Alerts       []AlertRule     `mapstructure:"alerts"`
	Stations     []StationConfig `mapstructure:"stations"` // 为空时使用内置工站目录
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

// OEEConfig OEE 计算参数
type OEEConfig struct {
	LoadingTimeMinutes float64            `mapstructure:"loading_time_minutes"`
	DefaultOperation   string             `mapstructure:"default_operation"`
	StandardCycleTimes map[string]float64 `mapstructure:"standard_cycle_times"`
}

// AlertRule 告警规则，Rule 为 expr 布尔表达式
type AlertRule struct {
	Name     string `mapstructure:"name"`
	Rule     string `mapstructure:"rule"`
	Severity string `mapstructure:"severity"`
	Message  string `mapstructure:"message"`
}

// StationConfig 配置文件中的工站描述
type StationConfig struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Operation  string `mapstructure:"operation"`
	Address    string `mapstructure:"address"`
	Kind       string `mapstructure:"kind"`
	PrepTable  string `mapstructure:"prep_table"`
	PostTable  string `mapstructure:"post_table"`
	GaugeSlots int    `mapstructure:"gauge_slots"`
}

// Load 加载配置
// path 为空时在当前目录和 ./configs 下查找 config.yaml，找不到文件则只使用默认值
// 环境变量以 TRACEDASH_ 为前缀覆盖配置，例如 TRACEDASH_DATABASE_DSN
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // 配置文件名称 (不带扩展名)
		v.SetConfigType("yaml")   // 配置文件类型
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix("TRACEDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.OEE.StandardCycleTimes = normalizeOps(cfg.OEE.StandardCycleTimes)
	cfg.OEE.DefaultOperation = strings.ToUpper(cfg.OEE.DefaultOperation)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "Local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/traceability.db")
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("poll_workers", 4)
	v.SetDefault("active_window", 21*time.Minute)
	v.SetDefault("detail_limit", 100)
	v.SetDefault("search_limit", 1000)
	v.SetDefault("audit_log", "data/rework.log")
	v.SetDefault("oee.loading_time_minutes", 430.0)
	v.SetDefault("oee.default_operation", station.OpCNC)
	v.SetDefault("oee.standard_cycle_times", station.DefaultStandardCycleTimes())
	v.SetDefault("alerts", []map[string]any{
		{"name": "low_yield", "rule": "total >= 10 && yield < 90", "severity": "warning", "message": "{station} 良率 {yield}% 低于 90%"},
		{"name": "pending_backlog", "rule": "pending > 20", "severity": "info", "message": "{station} 待判定工件积压 {pending} 件"},
	})
}

// Viper 会把 map 的 key 转换为小写，工序代码统一转回大写
func normalizeOps(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// Validate 检查配置的基本合法性
func (c *Config) Validate() error {
	if c.OEE.LoadingTimeMinutes <= 0 {
		return fmt.Errorf("oee.loading_time_minutes 必须大于 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval 必须大于 0")
	}
	if c.PollWorkers <= 0 {
		c.PollWorkers = 1
	}
	if c.DetailLimit < 0 || c.SearchLimit < 0 {
		return fmt.Errorf("detail_limit / search_limit 不能为负数")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("不支持的数据库驱动 %q", c.Database.Driver)
	}
	return nil
}

// Location 解析配置的时区
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %q 失败: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level 解析日志级别，未知取值按 info 处理
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Registry 根据配置构建工站目录
func (c *Config) Registry() (*station.Registry, error) {
	if len(c.Stations) == 0 {
		return station.NewRegistry(station.DefaultCatalog())
	}
	descriptors := make([]station.Descriptor, 0, len(c.Stations))
	for _, s := range c.Stations {
		descriptors = append(descriptors, station.Descriptor{
			ID:         s.ID,
			Name:       s.Name,
			Operation:  strings.ToUpper(s.Operation),
			Address:    s.Address,
			Kind:       types.StationKind(strings.ToLower(s.Kind)),
			PrepTable:  s.PrepTable,
			PostTable:  s.PostTable,
			GaugeSlots: s.GaugeSlots,
		})
	}
	return station.NewRegistry(descriptors)
}
