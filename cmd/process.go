package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/processor"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process the invoice emails of a period",
	Long:  "Lists the period's invoice emails, extracts and stores each PDF, reconciles the period ledger against the unit mapping, exports it and alerts the unit responsibles.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		periodFlag, _ := cmd.Flags().GetString("period")
		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noNotify, _ := cmd.Flags().GetBool("no-notify")
		sinceFlag, _ := cmd.Flags().GetString("since")

		period, err := resolvePeriod(periodFlag, time.Now())
		if err != nil {
			return err
		}
		opts := processor.Options{Limit: limit, DryRun: dryRun, Notify: !noNotify}
		if sinceFlag != "" {
			opts.Since, err = time.ParseInLocation("2006-01-02", sinceFlag, time.UTC)
			if err != nil {
				return eris.Wrapf(err, "invalid --since %q", sinceFlag)
			}
		}

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Processor.ProcessPeriodBatch(ctx, period, opts)
		if err != nil {
			return eris.Wrap(err, "process period")
		}

		zap.L().Info("process complete",
			zap.String("run_id", report.RunID),
			zap.Stringer("period", report.Period),
			zap.Int("accepted", report.RecordsAccepted),
			zap.Int("errors", len(report.Errors)),
		)
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

// resolvePeriod parses MM/YYYY, defaulting to the month of now.
func resolvePeriod(s string, now time.Time) (model.Period, error) {
	if s == "" {
		return model.PeriodOf(now), nil
	}
	p, err := model.ParsePeriod(s)
	if err != nil {
		return model.Period{}, eris.Wrap(err, "invalid --period")
	}
	return p, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	processCmd.Flags().String("period", "", "period to reconcile as MM/YYYY (default current month)")
	processCmd.Flags().Int("limit", 0, "max emails to list (default from config)")
	processCmd.Flags().Bool("dry-run", false, "reconcile in memory without writing or sending")
	processCmd.Flags().Bool("no-notify", false, "skip per-invoice consumption alerts")
	processCmd.Flags().String("since", "", "start of the email window as YYYY-MM-DD (default first day of period)")
	rootCmd.AddCommand(processCmd)
}
