package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Send the monthly summary to the admins",
	Long:  "Reads a period's ledger export back from the blob store and sends the admins its statistics with the summary PDF attached.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		periodFlag, _ := cmd.Flags().GetString("period")
		period, err := resolvePeriod(periodFlag, time.Now())
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "summary")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Processor.SendMonthlySummary(ctx, period)
		if err != nil {
			return eris.Wrap(err, "monthly summary")
		}
		zap.L().Info("summary sent",
			zap.Stringer("period", period),
			zap.Int("sent", report.Sent()),
			zap.Int("failed", report.Failed()),
		)
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	summaryCmd.Flags().String("period", "", "period to summarize as MM/YYYY (default current month)")
	rootCmd.AddCommand(summaryCmd)
}
