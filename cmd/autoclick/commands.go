package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/autoclick-go/internal/database"
	"jordanella.com/autoclick-go/internal/display"
	"jordanella.com/autoclick-go/internal/events"
	"jordanella.com/autoclick-go/internal/logging"
	"jordanella.com/autoclick-go/internal/metrics"
	"jordanella.com/autoclick-go/internal/monitor"
	"jordanella.com/autoclick-go/internal/server"
)

func newMonitorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "monitors",
		Short: "List connected monitors in search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			monitors, err := a.monitors.Monitors()
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			for i, m := range monitors {
				fmt.Fprintf(a.stdout, "Monitor %d: %s\n", i+1, m)
			}
			return nil
		},
	}
}

func newWhereCmd(a *app) *cobra.Command {
	var (
		copyPos  bool
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "where",
		Short: "Print the cursor position and the monitor under it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			monitors, err := a.monitors.Monitors()
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}

			ctx, stop := a.signalContext(cmd.Context())
			defer stop()

			// handlers run on this goroutine, so failed needs no lock
			var failed error
			ctrl := events.NewController()
			ctrl.Handle(events.SignalShowPosition, func() { failed = errors.Join(failed, a.showPosition(monitors)) })
			ctrl.Handle(events.SignalCopyPosition, func() { failed = errors.Join(failed, a.copyPosition()) })

			control := make(chan events.Signal)
			go feedPosition(ctx, control, copyPos, watch, interval)
			ctrl.Run(ctx, control)
			return failed
		},
	}
	cmd.Flags().BoolVar(&copyPos, "copy", false, "Copy \"x,y\" to the clipboard")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep printing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "Refresh interval with --watch")
	return cmd
}

// feedPosition emits one position request, or one per interval with watch
func feedPosition(ctx context.Context, control chan<- events.Signal, copyPos, watch bool, interval time.Duration) {
	defer close(control)
	send := func(sig events.Signal) bool {
		select {
		case control <- sig:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if copyPos && !send(events.SignalCopyPosition) {
		return
	}
	if !send(events.SignalShowPosition) || !watch {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send(events.SignalShowPosition) {
				return
			}
		}
	}
}

func (a *app) showPosition(monitors []display.Monitor) error {
	x, y, err := a.desktop.Position()
	if err != nil {
		return err
	}
	mon := display.Locate(x, y, monitors)
	if mon == display.None {
		fmt.Fprintf(a.stdout, "X: %d  Y: %d  Monitor: none\n", x, y)
		return nil
	}
	fmt.Fprintf(a.stdout, "X: %d  Y: %d  Monitor: %d\n", x, y, mon)
	return nil
}

func (a *app) copyPosition() error {
	x, y, err := a.desktop.Position()
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%d,%d", x, y)
	if err := a.desktop.Copy(text); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	fmt.Fprintf(a.stdout, "Copied: %s\n", text)
	return nil
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose search, abort and position over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.settings.Server.Addr = addr
			}

			tmpls, err := a.loadTemplates(&findOptions{}, nil)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}

			recorder := metrics.NewRecorder()
			sess, err := a.newSession(recorder)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			defer sess.Close()

			ctx, stop := a.signalContext(cmd.Context())
			defer stop()

			health := monitor.NewHealthChecker(a.monitors).
				WithUnhealthyCallback(func(reason string, err error) {
					a.reporter.ReportError(logging.ErrorCategoryCapture, logging.ErrorSeverityMedium, "health", reason, err)
				}).
				WithChangeCallback(func(before, after []display.Monitor) {
					a.logger.WarnWithContext("monitor layout changed", map[string]interface{}{
						"before": len(before),
						"after":  len(after),
					})
				})
			health.Start()
			defer health.Stop()

			opts := server.Options{
				Searcher:       sess.loop,
				Monitors:       a.monitors,
				Pointer:        a.desktop,
				Templates:      tmpls,
				TemplateDir:    a.settings.Server.TemplateDir,
				Config:         a.settings.AcquireConfig(),
				Metrics:        recorder,
				Health:         health,
				Errors:         a.reporter,
				AllowedOrigins: a.settings.Server.AllowedOrigins,
				Logger:         a.logger.Named("server"),
			}
			if sess.journal != nil {
				opts.History = sess.journal
			}
			srv := &http.Server{
				Addr:              a.settings.Server.Addr,
				Handler:           server.New(ctx, opts).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.InfoWithContext("listening", map[string]interface{}{"addr": srv.Addr})

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					a.reporter.ReportCriticalError(logging.ErrorCategorySystem, "server", "listener stopped", err,
						map[string]interface{}{"addr": srv.Addr})
					return &exitError{code: exitConfig, err: err}
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from settings, 127.0.0.1:8765)")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		runID   string
		summary bool
		prune   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settings.Journal.Path
			if path == "" {
				return &exitError{code: exitConfig, err: errJournalDisabled}
			}
			db, err := a.openJournal(path)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			defer db.Close()

			if prune > 0 {
				removed, err := db.PruneBefore(time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Pruned %d runs older than %s\n", removed, prune)
			}

			switch {
			case runID != "":
				err = printIterations(a, db, runID)
			case summary:
				err = printOutcomes(a, db)
			default:
				err = printRuns(a, db, limit)
			}
			if err != nil {
				return err
			}

			stats, err := db.GetStats()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "\n%d runs, %d iterations journaled (schema v%d)\n", stats.Runs, stats.Iterations, stats.Version)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the iterations of one run")
	cmd.Flags().BoolVar(&summary, "summary", false, "Show outcome totals per state")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete runs older than this before listing")
	return cmd
}

func optional[T any](v *T, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func printRuns(a *app, db *database.DB, limit int) error {
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tITERATIONS\tBEST\tTEMPLATE\tCENTER\tRUN")
	for _, r := range runs {
		center := "-"
		if r.CenterX != nil && r.CenterY != nil {
			center = fmt.Sprintf("(%d,%d)", *r.CenterX, *r.CenterY)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.State, r.Iterations,
			optional(r.BestScore, "%.3f"), optional(r.BestTemplate, "%s"), center, r.RunID)
	}
	return tw.Flush()
}

func printIterations(a *app, db *database.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return &exitError{code: exitConfig, err: err}
		}
		return err
	}
	its, err := db.Iterations(runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Run %s: %s after %d iterations\n", run.RunID, run.State, run.Iterations)
	if run.ActionError != nil {
		fmt.Fprintf(a.stdout, "Action error: %s\n", *run.ActionError)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBEST\tTEMPLATE\tMONITOR\tCAPTURED\tFAILED\tACCEPTED\tELAPSED")
	for _, it := range its {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%t\t%dms\n",
			it.Number, optional(it.BestScore, "%.3f"), optional(it.Template, "%s"), optional(it.MonitorIndex, "%d"),
			it.Captured, it.CaptureFailures, it.Accepted, it.ElapsedMS)
	}
	return tw.Flush()
}

func printOutcomes(a *app, db *database.DB) error {
	outcomes, err := db.Outcomes()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tRUNS\tAVG ITERATIONS\tMAX SCORE")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%s\n", o.State, o.Runs, o.AvgIterations, optional(o.MaxScore, "%.3f"))
	}
	return tw.Flush()
}
