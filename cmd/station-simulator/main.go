package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/store"
)

var opts struct {
	config   string
	interval time.Duration
	stations string
	models   string
	seed     int64
}

// rootCmd 模拟产线 PLC：按固定间隔随机挑选工站写入上下料记录
var rootCmd = &cobra.Command{
	Use:          "station-simulator",
	Short:        "向工站记录表持续写入模拟工件",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.config, "config", "", "配置文件路径")
	f.DurationVar(&opts.interval, "interval", 3*time.Second, "写入间隔")
	f.StringVar(&opts.stations, "stations", "", "逗号分隔的工站 ID，为空时使用全部工站")
	f.StringVar(&opts.models, "models", "PX-100,PX-200,HX-300", "逗号分隔的型号")
	f.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "随机种子")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func selectStations(reg *station.Registry, ids string) []station.Descriptor {
	if strings.TrimSpace(ids) == "" {
		return reg.All()
	}
	var out []station.Descriptor
	for _, id := range strings.Split(ids, ",") {
		if d, ok := reg.ByID(strings.TrimSpace(id)); ok {
			out = append(out, d)
		}
	}
	return out
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(opts.config)
	if err != nil {
		return errs.Wrap(err, "load config")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})).With("service", "station-simulator")
	slog.SetDefault(logger)

	reg, err := cfg.Registry()
	if err != nil {
		return errs.Wrap(err, "build station registry")
	}
	stations := selectStations(reg, opts.stations)
	if len(stations) == 0 {
		return errs.Wrap(errs.ErrValidation("no stations selected"), "select stations")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return errs.Wrap(err, "open database")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	if err := store.Migrate(ctx, db, stations); err != nil {
		return errs.Wrap(err, "migrate")
	}
	st := store.New(db, logger)

	models := strings.Split(opts.models, ",")
	rng := rand.New(rand.NewSource(opts.seed))
	written := make(map[string]int, len(stations))

	logger.Info("=== 工站模拟器启动 ===", "stations", len(stations), "interval", opts.interval.String())
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("模拟器已停止", "parts", total(written))
			return nil
		case <-ticker.C:
			d := stations[rng.Intn(len(stations))]
			now := time.Now().In(loc)
			// 上料时间前移，保证下料时间不晚于当前
			part := store.RandomPart(rng, d, int(now.Unix()%1_000_000), now.Add(-5*time.Minute), models)
			if err := st.InsertPart(ctx, d, part); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("写入失败", "station_id", d.ID, "error", errs.Loggable(err))
				continue
			}
			written[d.ID]++
			logger.Info("工件已写入", "station_id", d.ID, "qr", part.QR, "status", part.Status)
		}
	}
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
