package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/processor"
	"github.com/enel-control/enel-cli/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect the persistent record store",
}

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record store statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "records")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Store.Statistics(ctx)
		if err != nil {
			return eris.Wrap(err, "record statistics")
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Records:\t%d\n", stats.TotalRecords)
		_, _ = fmt.Fprintf(w, "With amount:\t%d\n", stats.ResolvedAmountCount)
		_, _ = fmt.Fprintf(w, "Periods:\t%d\n", stats.DistinctPeriods)
		_, _ = fmt.Fprintf(w, "Installations:\t%d\n", stats.DistinctUnits)
		return w.Flush()
	},
}

var recordsHistoryCmd = &cobra.Command{
	Use:   "history <installation>",
	Short: "Show an installation's consumption history and classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "records")
		if err != nil {
			return err
		}
		defer env.Close()

		history, analysis, err := processor.AnalyzeInstallation(ctx, env.Store, args[0])
		if err != nil {
			return err
		}
		formatHistory(cmd.OutOrStdout(), args[0], history, analysis)
		return nil
	},
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <sqlite-file>",
	Short: "Copy records from a SQLite store file into Postgres",
	Long:  "Reads every record of a SQLite store file and bulk-copies them into the configured Postgres store. Records whose attachment hash is already stored are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Store.Driver != "postgres" {
			return eris.New("records import: store.driver must be postgres")
		}

		src, err := store.NewSQLite(args[0])
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck
		recs, err := src.Records(ctx)
		if err != nil {
			return eris.Wrap(err, "read sqlite records")
		}

		env, err := initEnv(ctx, "records")
		if err != nil {
			return err
		}
		defer env.Close()

		pg, ok := env.Store.(*store.PostgresStore)
		if !ok {
			return eris.New("records import: target store is not postgres")
		}
		n, err := pg.Import(ctx, recs)
		if err != nil {
			return err
		}
		zap.L().Info("records imported", zap.Int("read", len(recs)), zap.Int64("inserted", n))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d records\n", n, len(recs))
		return nil
	},
}

func formatHistory(out io.Writer, installation string, history []model.HistoryEntry, a model.Analysis) {
	if len(history) == 0 {
		_, _ = fmt.Fprintf(out, "No records for installation %s\n", installation)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tKWH")
	_, _ = fmt.Fprintln(w, "------\t---")
	for _, h := range history {
		_, _ = fmt.Fprintf(w, "%s\t%.0f\n", h.Period, h.ConsumptionKWh)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\ncurrent %.0f kWh, average %.0f kWh over %d months, deviation %.1f%%, tier %s\n",
		a.Current, a.TrailingAverage, a.Samples, a.DeviationPercent, a.Classification.Tier)
}

func init() {
	recordsCmd.AddCommand(recordsStatsCmd)
	recordsCmd.AddCommand(recordsHistoryCmd)
	recordsCmd.AddCommand(recordsImportCmd)
	rootCmd.AddCommand(recordsCmd)
}
