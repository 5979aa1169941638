package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"traceability-dashboard/internal/errs"
)

var cfgFile string

// rootCmd 不带子命令时只打印帮助
var rootCmd = &cobra.Command{
	Use:          "tracedash",
	Short:        "产线追溯分析与 OEE 看板",
	Long:         "读取各工站上下料记录，计算良率、节拍与 OEE，并提供实时看板、检索、返工与导出。",
	SilenceUsage: true,
}

// Execute 执行根命令，main 只调用一次
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	rootCmd.SetContext(ctx)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.New(slog.NewJSONHandler(rootCmd.ErrOrStderr(), nil)).
			Error("命令执行失败", "command", os.Args[1:], "error", errs.Loggable(err))
		return errs.Wrap(err, "execute root command")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认在 . 与 ./configs 下查找 config.yaml)")
}
