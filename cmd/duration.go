package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/outcome"
	"github.com/sells-group/crm-pulse/internal/store"
)

var durationCmd = &cobra.Command{
	Use:   "duration",
	Short: "Correlate today's call durations with lead outcomes per agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "duration"))

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

		var rawLeads, rawCalls []map[string]any
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rawLeads, err = cachedFetch(gctx, st, "Leads", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchRecentLeads(c, cfg.Dashboard.LookbackDays, maxLeadPages)
			})
			return err
		})
		g.Go(func() error {
			var err error
			rawCalls, err = cachedFetch(gctx, st, "Calls", func(c context.Context) ([]map[string]any, error) {
				return zc.FetchModule(c, "Calls", 1)
			})
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		calls := make([]crm.Call, 0, len(rawCalls))
		for _, r := range rawCalls {
			calls = append(calls, crm.ProjectCall(crm.Record(r)))
		}
		callSet := match.CallPhoneSet(calls)
		calledByPhone := func(key string) bool {
			_, ok := callSet[key]
			return ok
		}
		leads := make([]crm.Lead, 0, len(rawLeads))
		for _, r := range rawLeads {
			leads = append(leads, crm.ProjectLead(crm.Record(r), match.NormalizePhone, calledByPhone))
		}

		idx := match.BuildIndex(leads, calls)
		cls := outcome.DefaultClassifier()
		if len(cfg.Dashboard.ConvertKeywords) > 0 {
			cls.ConvertKeywords = cfg.Dashboard.ConvertKeywords
		}
		if len(cfg.Dashboard.RejectKeywords) > 0 {
			cls.RejectKeywords = cfg.Dashboard.RejectKeywords
		}

		insights := outcome.Correlate(calls, idx, cls, clock)

		path, err := writeDataFile("call-duration-insights.json", insights)
		if err != nil {
			return err
		}
		if err := persistSnapshot(ctx, st, store.KindDuration, insights, clock.Now()); err != nil {
			return err
		}

		log.Info("duration-outcome analysis updated",
			zap.String("path", path),
			zap.Int("agents", len(insights)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(durationCmd)
}
