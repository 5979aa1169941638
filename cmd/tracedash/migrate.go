package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "为工站目录中缺失的表建表",
	RunE: withApp(func(cmd *cobra.Command, a *app) error {
		if err := store.Migrate(cmd.Context(), a.db, a.registry.All()); err != nil {
			return errs.Wrap(err, "migrate")
		}
		a.logger.Info("建表完成", "stations", a.registry.Len())
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema ready for %d stations (%s)\n", a.registry.Len(), a.cfg.Database.Driver)
		return errs.Wrap(err, "write migrate output")
	}),
}

var seedOpts struct {
	parts int
	days  int
	seed  int64
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "写入确定性的样例数据 (会先建表)",
	RunE: withApp(func(cmd *cobra.Command, a *app) error {
		ctx := cmd.Context()
		if err := store.Migrate(ctx, a.db, a.registry.All()); err != nil {
			return errs.Wrap(err, "migrate")
		}
		n, err := store.Seed(ctx, a.store, a.registry.All(), store.SeedOptions{
			PartsPerStation: seedOpts.parts,
			Window:          time.Duration(seedOpts.days) * 24 * time.Hour,
			Now:             time.Now().In(a.loc),
			Seed:            seedOpts.seed,
		})
		if err != nil {
			return errs.Wrapf(err, "seed (%d parts written)", n)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d parts across %d stations\n", n, a.registry.Len())
		return errs.Wrap(err, "write seed output")
	}),
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.parts, "parts", 50, "每个工站的工件数")
	seedCmd.Flags().IntVar(&seedOpts.days, "days", 7, "样例时间跨度 (天)")
	seedCmd.Flags().Int64Var(&seedOpts.seed, "seed", 1, "随机种子")
	rootCmd.AddCommand(migrateCmd, seedCmd)
}
