package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"jordanella.com/autoclick-go/internal/cv"
	"jordanella.com/autoclick-go/internal/display"
	"jordanella.com/autoclick-go/internal/logging"
	"jordanella.com/autoclick-go/pkg/templates"
)

// ErrNoMonitors is returned when enumeration yields nothing to search
var ErrNoMonitors = display.ErrNoMonitors

// Executor performs the pointer and keyboard side effects of a match
type Executor interface {
	MoveTo(x, y int) error
	Click() error
	PressKey(name string) error
}

// Scorer finds the best offset of a template inside a frame
type Scorer interface {
	Score(frame, tmpl *image.RGBA) cv.MatchResult
}

// Loop searches every monitor for the best template match and acts on it.
// A Loop holds no per-search state and may run several searches concurrently.
type Loop struct {
	enum      display.Enumerator
	source    cv.FrameSource
	exec      Executor
	scorer    Scorer
	clock     Clock
	logger    *logging.Logger
	reporter  *logging.ErrorReporter
	observers []Observer
}

// Option configures a Loop
type Option func(*Loop)

// WithScorer replaces the default NCC scorer
func WithScorer(s Scorer) Option {
	return func(l *Loop) {
		l.scorer = s
	}
}

// WithClock replaces wall time
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithErrorReporter routes recovered errors to reporter
func WithErrorReporter(reporter *logging.ErrorReporter) Option {
	return func(l *Loop) {
		l.reporter = reporter
	}
}

// WithObserver adds a diagnostics observer
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observers = append(l.observers, o)
	}
}

// New creates a loop over the given collaborators
func New(enum display.Enumerator, source cv.FrameSource, exec Executor, opts ...Option) *Loop {
	l := &Loop{
		enum:   enum,
		source: source,
		exec:   exec,
		scorer: cv.NewScorer(0),
		clock:  realClock{},
		logger: logging.NewLogger("acquire"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// slot holds the outcome of one (monitor, template) pairing
type slot struct {
	candidate Candidate
	ok        bool
}

// scanResult is the iteration-local output of capture and scoring
type scanResult struct {
	slots           []slot
	captured        int
	captureFailures int
	scoringFailures int
}

// Run searches until a candidate reaches cfg.Threshold, the timeout expires or
// ctx is cancelled. Configuration errors are returned before any capture.
// Cancellation returns StateAborted together with ctx.Err().
func (l *Loop) Run(ctx context.Context, tmpls []templates.Template, cfg Config) (Result, error) {
	if len(tmpls) == 0 {
		l.reportConfigError(ErrNoTemplates)
		return Result{BestScore: cv.NoScore}, ErrNoTemplates
	}
	if err := cfg.Validate(); err != nil {
		l.reportConfigError(err)
		return Result{BestScore: cv.NoScore}, err
	}

	monitors, err := l.enum.Monitors()
	if err == nil && len(monitors) == 0 {
		err = ErrNoMonitors
	}
	if err != nil {
		if !errors.Is(err, ErrNoMonitors) {
			err = fmt.Errorf("%w: %v", ErrNoMonitors, err)
		}
		l.reportConfigError(err)
		return Result{BestScore: cv.NoScore}, err
	}

	runID := uuid.NewString()
	start := l.clock.Now()
	log := l.logger.WithContext(map[string]interface{}{"run_id": runID})

	names := make([]string, len(tmpls))
	for i, t := range tmpls {
		names[i] = t.Name
	}
	info := SearchInfo{RunID: runID, Templates: names, Monitors: monitors, Config: cfg, StartedAt: start}
	for _, o := range l.observers {
		o.SearchStarted(info)
	}
	log.InfoWith("search started", map[string]interface{}{
		"templates":  len(tmpls),
		"monitors":   len(monitors),
		"threshold":  cfg.Threshold,
		"timeout_ms": cfg.Timeout.Milliseconds(),
	})

	result := Result{RunID: runID, State: StateSearching, BestScore: cv.NoScore}

	for {
		if err := ctx.Err(); err != nil {
			return l.finish(result, StateAborted, start), err
		}
		if l.clock.Now().Sub(start) >= cfg.Timeout {
			return l.finish(result, StateExpired, start), nil
		}

		result.Iterations++
		sc := l.scan(runID, monitors, tmpls, cfg.Workers)
		best, found := fold(sc.slots)

		report := IterationReport{
			RunID:           runID,
			Number:          result.Iterations,
			Captured:        sc.captured,
			CaptureFailures: sc.captureFailures,
			ScoringFailures: sc.scoringFailures,
			Elapsed:         l.clock.Now().Sub(start),
		}
		if found {
			report.Best = &best
			report.Center = best.Center()
			report.Accepted = best.Score >= cfg.Threshold

			if result.Best == nil || best.Score > result.BestScore {
				b := best
				result.Best = &b
				result.BestScore = best.Score
				result.Center = report.Center
			}
		}
		l.logIteration(log, report)
		for _, o := range l.observers {
			o.IterationCompleted(report)
		}

		if report.Accepted {
			result.Best = report.Best
			result.BestScore = best.Score
			result.Center = report.Center
			result.ActionErr = l.act(ctx, runID, report.Center, cfg)
			return l.finish(result, StateActing, start), nil
		}

		if err := l.clock.Sleep(ctx, cfg.RetryInterval); err != nil {
			return l.finish(result, StateAborted, start), err
		}
	}
}

func (l *Loop) finish(result Result, state State, start time.Time) Result {
	result.State = state
	result.Elapsed = l.clock.Now().Sub(start)

	fields := map[string]interface{}{
		"run_id":     result.RunID,
		"state":      string(state),
		"iterations": result.Iterations,
		"best_score": result.BestScore,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}
	switch state {
	case StateActing:
		fields["x"] = result.Center.X
		fields["y"] = result.Center.Y
		fields["template"] = result.Best.Template
		fields["monitor"] = result.Best.MonitorIndex
		l.logger.InfoWithContext("target acquired", fields)
	case StateExpired:
		l.logger.WarnWithContext("target not found before timeout", fields)
		l.report(logging.ErrorCategoryTimeout, logging.ErrorSeverityLow, "search timed out",
			fmt.Errorf("no candidate reached threshold after %d iterations", result.Iterations), fields)
	default:
		l.logger.InfoWithContext("search aborted", fields)
	}

	for _, o := range l.observers {
		o.SearchFinished(result)
	}
	return result
}

// scan captures every monitor and scores every template against each frame.
// Slots are indexed monitor-major so the fold sees enumeration order
// regardless of which worker finished first.
func (l *Loop) scan(runID string, monitors []display.Monitor, tmpls []templates.Template, workers int) scanResult {
	slots := make([]slot, len(monitors)*len(tmpls))
	captured := make([]bool, len(monitors))
	scoringFailures := make([]int, len(monitors))

	scanOne := func(m int) {
		frame, err := l.source.Capture(monitors[m])
		if err == nil && frame == nil {
			err = cv.ErrInvalidImage
		}
		if err != nil {
			l.report(logging.ErrorCategoryCapture, logging.ErrorSeverityMedium, "monitor capture failed", err,
				map[string]interface{}{"run_id": runID, "monitor": m + 1})
			return
		}
		captured[m] = true

		for t := range tmpls {
			match, err := l.score(frame, tmpls[t].Image)
			if err != nil {
				scoringFailures[m]++
				l.report(logging.ErrorCategoryScoring, logging.ErrorSeverityMedium, "template scoring failed", err,
					map[string]interface{}{"run_id": runID, "monitor": m + 1, "template": tmpls[t].Name})
				continue
			}
			if !match.Found {
				continue
			}
			slots[m*len(tmpls)+t] = slot{
				candidate: Candidate{
					Template:      tmpls[t].Name,
					TemplateIndex: t,
					Monitor:       monitors[m],
					MonitorIndex:  m + 1,
					Offset:        match.Location,
					Score:         match.Confidence,
					Width:         tmpls[t].Width,
					Height:        tmpls[t].Height,
				},
				ok: true,
			}
		}
	}

	if workers > 1 && len(monitors) > 1 {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for m := range monitors {
			wg.Add(1)
			sem <- struct{}{}
			go func(m int) {
				defer wg.Done()
				defer func() { <-sem }()
				scanOne(m)
			}(m)
		}
		wg.Wait()
	} else {
		for m := range monitors {
			scanOne(m)
		}
	}

	sc := scanResult{slots: slots}
	for m := range monitors {
		if captured[m] {
			sc.captured++
		} else {
			sc.captureFailures++
		}
		sc.scoringFailures += scoringFailures[m]
	}
	return sc
}

// score runs the scorer, turning a panic on a malformed pairing into an error
func (l *Loop) score(frame, tmpl *image.RGBA) (match cv.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = cv.NoMatch()
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	return l.scorer.Score(frame, tmpl), nil
}

// fold reduces candidates in slot order. A later candidate replaces the
// leader only with a strictly greater score, so ties keep the earlier monitor
// and then the earlier template.
func fold(slots []slot) (Candidate, bool) {
	var best Candidate
	found := false
	for _, s := range slots {
		if !s.ok {
			continue
		}
		if !found || s.candidate.Score > best.Score {
			best = s.candidate
			found = true
		}
	}
	return best, found
}

// act moves, clicks, waits for the UI to settle and sends the confirmation
// key. Failures are collected and never abort the remaining steps, except
// that a click is pointless when the pointer could not be moved.
func (l *Loop) act(ctx context.Context, runID string, center image.Point, cfg Config) error {
	var errs []error

	if err := l.exec.MoveTo(center.X, center.Y); err != nil {
		errs = append(errs, fmt.Errorf("move to (%d,%d): %w", center.X, center.Y, err))
	} else if err := l.exec.Click(); err != nil {
		errs = append(errs, fmt.Errorf("click: %w", err))
	}

	// The target was already found; a late abort does not skip confirmation
	_ = l.clock.Sleep(context.WithoutCancel(ctx), cfg.SettleDelay)

	if err := l.exec.PressKey(cfg.ConfirmKey); err != nil {
		errs = append(errs, fmt.Errorf("press %q: %w", cfg.ConfirmKey, err))
	}

	for _, err := range errs {
		l.report(logging.ErrorCategoryAction, logging.ErrorSeverityHigh, "input action failed", err,
			map[string]interface{}{"run_id": runID, "x": center.X, "y": center.Y})
	}
	return errors.Join(errs...)
}

func (l *Loop) logIteration(log *logging.ContextLogger, report IterationReport) {
	fields := map[string]interface{}{
		"iteration":        report.Number,
		"captured":         report.Captured,
		"capture_failures": report.CaptureFailures,
		"elapsed_ms":       report.Elapsed.Milliseconds(),
	}
	if report.Best != nil {
		fields["template"] = report.Best.Template
		fields["monitor"] = report.Best.MonitorIndex
		fields["score"] = report.Best.Score
		fields["x"] = report.Center.X
		fields["y"] = report.Center.Y
		fields["accepted"] = report.Accepted
	}
	log.DebugWith("iteration complete", fields)
}

// report logs a recovered error and forwards it to the error reporter if one is set
func (l *Loop) report(category logging.ErrorCategory, severity logging.ErrorSeverity, message string, err error, fields map[string]interface{}) {
	if l.reporter != nil {
		l.reporter.ReportErrorWithContext(category, severity, "acquire", message, err, fields)
		return
	}
	switch severity {
	case logging.ErrorSeverityLow:
	case logging.ErrorSeverityMedium:
		l.logger.WarnWithContext(message+": "+err.Error(), fields)
	default:
		l.logger.ErrorWithContext(message, err, fields)
	}
}

func (l *Loop) reportConfigError(err error) {
	if l.reporter != nil {
		l.reporter.ReportError(logging.ErrorCategoryConfiguration, logging.ErrorSeverityHigh, "acquire",
			"search cannot start", err)
		return
	}
	l.logger.Error("search cannot start", err)
}
