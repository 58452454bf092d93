package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"lunaralarm/internal/app"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/lunar"
)

func checkCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the daily check once and exit",
		Long:  "Runs the daily check for today (or --date) and delivers the result. With --dry-run nothing is recorded or sent; the messages are printed instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLog.Sync()

			a, err := app.Build(cmd.Context(), cfg, app.BuildOptions{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			today := time.Now().In(a.Location)
			if date != "" {
				today, err = time.ParseInLocation(time.DateOnly, date, a.Location)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}

			res, err := a.Service.Run(cmd.Context(), today)
			printResult(cmd.OutOrStdout(), res, dryRun)
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Check as if today were this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use a throwaway ledger and print instead of sending")
	return cmd
}

func printResult(w io.Writer, res app.Result, dryRun bool) {
	fmt.Fprintf(w, "📅 %s: %d notification(s)\n", res.Today.Format(time.DateOnly), len(res.Notifications))
	for _, n := range res.Notifications {
		fmt.Fprintf(w, "\n[%s] %s → %s (음력 %s)\n", n.Label, n.Summary, n.TargetDate.Format(time.DateOnly), lunar.FormatKorean(n.Lunar))
		if dryRun {
			fmt.Fprintln(w, n.Body)
		}
	}
	if !dryRun && len(res.Notifications) > 0 {
		fmt.Fprintf(w, "\nsent %d, failed %d\n", res.Report.Sent, res.Report.Failed)
		for _, err := range res.Report.Errors {
			fmt.Fprintf(w, "  • %v\n", err)
		}
	}
}
