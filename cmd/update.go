package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-pulse/internal/funnel"
	"github.com/sells-group/crm-pulse/internal/snapshot"
	"github.com/sells-group/crm-pulse/internal/store"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch CRM records and rebuild the dashboard metrics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		start := time.Now()
		log := zap.L().With(zap.String("command", "update"))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		zc, err := initZoho(st)
		if err != nil {
			return err
		}
		clock, err := businessClock()
		if err != nil {
			return err
		}
		gaz, err := loadGazetteer()
		if err != nil {
			return err
		}

		var leads, calls, deals, tasks []map[string]any
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			leads, err = cachedFetch(gctx, st, "Leads", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchRecentLeads(c, cfg.Dashboard.LookbackDays, maxLeadPages)
			})
			return err
		})
		g.Go(func() error {
			var err error
			calls, err = cachedFetch(gctx, st, "Calls", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchModule(c, "Calls", 1)
			})
			return err
		})
		g.Go(func() error {
			var err error
			deals, err = cachedFetch(gctx, st, "Deals", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchModule(c, "Deals", maxDealPages)
			})
			return err
		})
		g.Go(func() error {
			var err error
			tasks, err = cachedFetch(gctx, st, "Tasks", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchModule(c, "Tasks", 1)
			})
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		snap := snapshot.Build(toRecords(leads), toRecords(calls), toRecords(deals), toRecords(tasks), snapshot.Config{
			LookbackDays:    cfg.Dashboard.LookbackDays,
			NCLookbackDays:  cfg.Dashboard.NCLookbackDays,
			OverdueMinutes:  cfg.Dashboard.OverdueMinutes,
			MinHourVolume:   cfg.Dashboard.MinHourCallVolume,
			SLA:             funnel.SLAConfig{NC1ToNC2Hours: cfg.Dashboard.NCSlaHours.NC1ToNC2, NC2ToNC3Hours: cfg.Dashboard.NCSlaHours.NC2ToNC3},
			CategoryFields:  cfg.Dashboard.CategoryFields,
			OwnerExclusions: cfg.Dashboard.OwnerExclusions,
			TopAreas:        cfg.Dashboard.TopAreas,
			Gazetteer:       gaz,
		}, clock)

		path, err := writeDataFile("metrics.json", snap)
		if err != nil {
			return err
		}
		if err := persistSnapshot(ctx, st, store.KindMetrics, snap, snap.GeneratedAt); err != nil {
			return err
		}

		log.Info("dashboard data updated",
			zap.String("path", path),
			zap.Int("todaysLeads", snap.KPIs.TodaysLeadsCount),
			zap.Int("todaysDeals", snap.KPIs.TotalDealsCount),
			zap.Int("todaysTasks", snap.KPIs.TotalTasksCount),
			zap.Int("categories", len(snap.CategoryConversions)),
			zap.Int("topAreas", len(snap.TopBookingAreas)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
