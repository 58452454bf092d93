package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lunaralarm/internal/app"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/scheduler"
	"lunaralarm/internal/web"
)

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily scheduler and the operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLog.Sync()
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("lunaralarm starting",
				"version", version,
				"timezone", cfg.Timezone,
				"time", cfg.Schedule.Time,
				"offsets", cfg.Offsets,
				"strategy", cfg.Matcher.Strategy,
				"ics_count", len(cfg.ICS),
				"listen", cfg.Listen,
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			a, err := app.Build(ctx, cfg, app.BuildOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			hour, minute, err := cfg.Schedule.Clock()
			if err != nil {
				return err
			}
			sched, err := scheduler.New(a.Location, hour, minute, a.Service.ScheduledRun)
			if err != nil {
				return err
			}
			sched.Start(ctx, cfg.Schedule.RunOnStart)

			g, gctx := errgroup.WithContext(ctx)
			if cfg.Listen != "" {
				srv := web.NewServer(cfg, a.Service, a.Upcoming)
				g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Listen) })
			}
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			err = g.Wait()

			// Wait for an in-flight check to finish before closing the ledger.
			<-sched.Stop().Done()
			appLog.Info("lunaralarm exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
