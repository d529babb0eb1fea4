package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-pulse/internal/callstats"
	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/store"
)

var (
	callsMinRecords int
	callsLookback   int
	callsOutput     string
)

// callAnalysisFile wraps the analysis with the sample size it was built
// from, matching the shape served at /api/calls.
type callAnalysisFile struct {
	Analysis   callstats.Report `json:"analysis"`
	SampleSize int              `json:"sampleSize"`
}

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Fetch call history and rebuild the call-analysis snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "calls"))

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

		pages := (callsMinRecords + 199) / 200
		raw, err := cachedFetch(ctx, st, "Calls", func(c context.Context) ([]map[string]any, error) {
			return zc.FetchModule(c, "Calls", pages)
		})
		if err != nil {
			return err
		}

		calls := make([]crm.Call, 0, len(raw))
		for _, r := range raw {
			calls = append(calls, crm.ProjectCall(crm.Record(r)))
		}
		calls = callstats.FilterLookback(calls, clock, callsLookback)

		report := callstats.Analyze(calls, clock)
		out := callAnalysisFile{Analysis: report, SampleSize: len(calls)}

		path, err := writeDataFile(callsOutput, out)
		if err != nil {
			return err
		}
		if err := persistSnapshot(ctx, st, store.KindCalls, out, report.GeneratedAt); err != nil {
			return err
		}

		log.Info("call analysis updated",
			zap.String("path", path),
			zap.Int("sampleSize", len(calls)),
			zap.Int("lookbackDays", callsLookback),
			zap.Int("connectedCalls", report.ConnectedCalls),
		)
		return nil
	},
}

func init() {
	callsCmd.Flags().IntVar(&callsMinRecords, "min-records", 1200, "minimum call records to fetch")
	callsCmd.Flags().IntVar(&callsLookback, "lookback", 0, "trailing days to analyze (0 = all fetched history)")
	callsCmd.Flags().StringVar(&callsOutput, "output", "bulk-call-analysis.json", "output file name under the data dir")
	rootCmd.AddCommand(callsCmd)
}
