package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/enel-control/enel-cli/internal/processor"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert responsibles about unusual consumption",
	Long:  "Classifies the latest stored reading of each installation against its history and notifies the responsibles of those whose deviation reaches the threshold or whose consumption is critical.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		installation, _ := cmd.Flags().GetString("installation")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initEnv(ctx, "alerts")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Processor.ClassifyAndNotify(ctx, installation, threshold)
		if err != nil {
			return eris.Wrap(err, "alerts")
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		formatAlerts(cmd.OutOrStdout(), report)
		return nil
	},
}

func formatAlerts(out io.Writer, r *processor.NotificationBatchReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INSTALLATION\tUNIT\tTIER\tDEVIATION\tSENT\tNOTE")
	_, _ = fmt.Fprintln(w, "------------\t----\t----\t---------\t----\t----")
	for _, it := range r.Items {
		sent := 0
		if it.Delivery != nil {
			sent = it.Delivery.Sent()
		}
		note := it.Skipped
		if it.Error != "" {
			note = it.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d\t%s\n",
			it.Installation,
			it.Unit,
			it.Analysis.Classification.Tier,
			it.Analysis.DeviationPercent,
			sent,
			note,
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nthreshold %.0f%%: %d evaluated, %d triggered, %d sent, %d failed\n",
		r.ThresholdPercent, r.Evaluated, r.Triggered, r.Sent, r.Failed)
}

func init() {
	alertsCmd.Flags().String("installation", "", "installation to evaluate (default all mapped units)")
	alertsCmd.Flags().Float64("threshold", 0, "deviation percent that triggers an alert (default from config)")
	alertsCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(alertsCmd)
}
