package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"jordanella.com/autoclick-go/internal/acquire"
	"jordanella.com/autoclick-go/internal/database"
	"jordanella.com/autoclick-go/internal/events"
	"jordanella.com/autoclick-go/internal/logging"
	"jordanella.com/autoclick-go/pkg/templates"
)

type findOptions struct {
	threshold float64
	retry     time.Duration
	timeout   time.Duration
	settle    time.Duration
	key       string
	workers   int
	manifest  string
	dir       string
}

func addFindFlags(cmd *cobra.Command, o *findOptions) {
	def := acquire.DefaultConfig()
	f := cmd.Flags()
	f.Float64Var(&o.threshold, "threshold", def.Threshold, "Minimum score to accept a match, in [0,1]")
	f.DurationVar(&o.retry, "retry", def.RetryInterval, "Pause between iterations")
	f.DurationVar(&o.timeout, "timeout", def.Timeout, "Give up after this long")
	f.DurationVar(&o.settle, "settle", def.SettleDelay, "Pause between the click and the confirm key")
	f.StringVar(&o.key, "key", def.ConfirmKey, "Confirm key sent after the click")
	f.IntVar(&o.workers, "workers", def.Workers, "Monitors captured and scored in parallel")
	f.StringVar(&o.manifest, "manifest", "", "YAML template manifest")
	f.StringVar(&o.dir, "dir", "", "Use every image in this directory as a template")
}

func newFindCmd(a *app, o *findOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "find [templates...]",
		Short:   "Search all monitors and click the best match",
		Example: "  autoclick find accept_green.png accept_green-2.png --timeout 10s",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFind(cmd, o, args)
		},
	}
	addFindFlags(cmd, o)
	return cmd
}

// applyFindFlags copies explicitly set flags over the loaded settings
func (a *app) applyFindFlags(cmd *cobra.Command, o *findOptions, args []string) {
	s := &a.settings.Search
	f := cmd.Flags()
	if f.Changed("threshold") {
		s.Threshold = o.threshold
	}
	if f.Changed("retry") {
		s.RetryMS = int(o.retry / time.Millisecond)
	}
	if f.Changed("timeout") {
		s.TimeoutMS = int(o.timeout / time.Millisecond)
	}
	if f.Changed("settle") {
		s.SettleMS = int(o.settle / time.Millisecond)
	}
	if f.Changed("key") {
		s.ConfirmKey = o.key
	}
	if f.Changed("workers") {
		s.Workers = o.workers
	}
	if f.Changed("manifest") {
		s.Manifest = o.manifest
	}
	if len(args) > 0 {
		s.Templates = append([]string(nil), args...)
		s.Manifest = ""
	}
}

// errManifestAndDir rejects two explicit template sources
var errManifestAndDir = errors.New("--manifest and --dir are mutually exclusive")

// loadTemplates resolves template sources: arguments, then --dir, then the
// manifest (flag or settings), then the settings list
func (a *app) loadTemplates(o *findOptions, args []string) ([]templates.Template, error) {
	if o.dir != "" && o.manifest != "" {
		return nil, errManifestAndDir
	}

	var (
		tmpls []templates.Template
		warns []templates.Warning
	)
	switch {
	case len(args) == 0 && o.dir != "":
		paths, err := templates.ExpandDir(o.dir)
		if err != nil {
			return nil, err
		}
		tmpls, warns = templates.Load(paths)
	case len(args) == 0 && a.settings.Search.Manifest != "":
		entries, err := templates.LoadManifest(a.settings.Search.Manifest)
		if err != nil {
			return nil, err
		}
		tmpls, warns = templates.LoadEntries(entries)
	default:
		tmpls, warns = templates.Load(a.settings.Search.Templates)
	}

	for _, w := range warns {
		a.logger.WarnWithContext("could not read template", map[string]interface{}{
			"path":  w.Path,
			"error": w.Err.Error(),
		})
	}

	dups, err := templates.Duplicates(tmpls)
	if err != nil {
		a.logger.DebugWithContext("duplicate check skipped", map[string]interface{}{"error": err.Error()})
	}
	for _, d := range dups {
		a.logger.WarnWithContext("templates look identical", map[string]interface{}{
			"first":  d.First,
			"second": d.Second,
		})
	}
	return tmpls, nil
}

// session bundles a loop with the observers that outlive one search
type session struct {
	loop    *acquire.Loop
	journal *database.DB
	bus     *events.DefaultEventBus
	closers []func()
}

// Close drains the bus before closing the sinks that consume it
func (s *session) Close() {
	if s.bus != nil {
		s.bus.Stop()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newSession wires the loop to the event bus, the event log and the journal
func (a *app) newSession(extra ...acquire.Observer) (*session, error) {
	bus := events.NewEventBus(256)
	bus.OnError(func(err error) {
		a.reporter.ReportError(logging.ErrorCategorySystem, logging.ErrorSeverityLow, "events", "event dispatch failed", err)
	})
	a.reporter.PublishTo(bus)
	s := &session{bus: bus}
	s.closers = append(s.closers, func() { a.reporter.PublishTo(nil) })

	opts := []acquire.Option{
		acquire.WithLogger(a.logger.Named("acquire")),
		acquire.WithErrorReporter(a.reporter),
		acquire.WithObserver(acquire.NewEventPublisher(bus)),
	}

	if dir := a.settings.Log.EventDir; dir != "" {
		var elOpts []logging.EventLoggerOption
		if a.settings.Log.SkipIterations {
			elOpts = append(elOpts, logging.WithoutIterations())
		}
		el, err := logging.NewEventLogger(bus, dir, elOpts...)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("event log: %w", err)
		}
		a.logger.DebugWithContext("writing events", map[string]interface{}{"path": el.Path()})
		s.closers = append(s.closers, func() { el.Close() })
	}

	if path := a.settings.Journal.Path; path != "" {
		db, err := a.openJournal(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.journal = db
		s.closers = append(s.closers, func() { db.Close() })
		opts = append(opts, acquire.WithObserver(database.NewJournal(db, a.reporter)))
	}

	for _, o := range extra {
		opts = append(opts, acquire.WithObserver(o))
	}

	s.loop = acquire.New(a.monitors, a.frames, a.desktop, opts...)
	return s, nil
}

func (a *app) openJournal(path string) (*database.DB, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	db.SetLogger(a.logger.Named("database"))
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	return db, nil
}

func (a *app) runFind(cmd *cobra.Command, o *findOptions, args []string) error {
	a.applyFindFlags(cmd, o, args)
	if err := a.settings.Validate(); err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	tmpls, err := a.loadTemplates(o, args)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	sess, err := a.newSession()
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	defer sess.Close()

	ctx, stop := a.signalContext(cmd.Context())
	defer stop()

	result, err := sess.loop.Run(ctx, tmpls, a.settings.AcquireConfig())
	if result.State == acquire.StateAborted {
		a.printResult(result)
		return &exitError{code: exitAborted}
	}
	if err != nil {
		if errors.Is(err, acquire.ErrNoTemplates) {
			err = fmt.Errorf("no valid images to search: %w", err)
		}
		return &exitError{code: exitConfig, err: err}
	}

	a.printResult(result)

	switch result.State {
	case acquire.StateActing:
		if result.ActionErr != nil {
			a.logger.Error("input failed after match", result.ActionErr)
		}
		return nil
	default:
		return &exitError{code: exitNotFound}
	}
}

// printResult writes the summary line; a miss rings the bell and prints red on a terminal
func (a *app) printResult(result acquire.Result) {
	line := result.Summary()
	if result.State != acquire.StateExpired {
		fmt.Fprintln(a.stdout, line)
		return
	}

	if f, ok := a.stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(a.stdout, "\a\x1b[31m%s\x1b[0m\n", line)
		return
	}
	fmt.Fprintf(a.stdout, "\a%s\n", line)
}

// contextOrBackground guards commands executed without ExecuteContext
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
