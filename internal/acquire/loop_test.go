package acquire

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"jordanella.com/autoclick-go/internal/cv"
	"jordanella.com/autoclick-go/internal/display"
	"jordanella.com/autoclick-go/internal/logging"
	"jordanella.com/autoclick-go/pkg/templates"
)

// fakeClock advances only when the loop sleeps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type countingEnum struct {
	monitors []display.Monitor
	err      error
	calls    int
}

func (e *countingEnum) Monitors() ([]display.Monitor, error) {
	e.calls++
	return e.monitors, e.err
}

// fakeSource hands out one fixed frame per monitor
type fakeSource struct {
	mu     sync.Mutex
	frames map[display.Monitor]*image.RGBA
	fail   map[display.Monitor]bool
	calls  int
}

func newFakeSource(monitors ...display.Monitor) *fakeSource {
	s := &fakeSource{frames: map[display.Monitor]*image.RGBA{}, fail: map[display.Monitor]bool{}}
	for _, m := range monitors {
		s.frames[m] = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	return s
}

func (s *fakeSource) Capture(m display.Monitor) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[m] {
		return nil, errors.New("display disconnected")
	}
	return s.frames[m], nil
}

// fakeScorer returns canned results keyed by frame and template buffer
type fakeScorer struct {
	results map[*image.RGBA]map[*image.RGBA]cv.MatchResult
	panics  map[*image.RGBA]bool
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{
		results: map[*image.RGBA]map[*image.RGBA]cv.MatchResult{},
		panics:  map[*image.RGBA]bool{},
	}
}

func (s *fakeScorer) set(frame, tmpl *image.RGBA, score float64, at image.Point) {
	if s.results[frame] == nil {
		s.results[frame] = map[*image.RGBA]cv.MatchResult{}
	}
	s.results[frame][tmpl] = cv.MatchResult{Found: true, Location: at, Confidence: score}
}

func (s *fakeScorer) Score(frame, tmpl *image.RGBA) cv.MatchResult {
	if s.panics[tmpl] {
		panic("malformed pairing")
	}
	if r, ok := s.results[frame][tmpl]; ok {
		return r
	}
	return cv.NoMatch()
}

type call struct {
	op   string
	x, y int
	key  string
}

type fakeExecutor struct {
	calls    []call
	moveErr  error
	clickErr error
	keyErr   error
}

func (e *fakeExecutor) MoveTo(x, y int) error {
	e.calls = append(e.calls, call{op: "move", x: x, y: y})
	return e.moveErr
}

func (e *fakeExecutor) Click() error {
	e.calls = append(e.calls, call{op: "click"})
	return e.clickErr
}

func (e *fakeExecutor) PressKey(name string) error {
	e.calls = append(e.calls, call{op: "key", key: name})
	return e.keyErr
}

func makeTemplate(name string, w, h int) templates.Template {
	return templates.Template{Name: name, Path: name + ".png", Image: image.NewRGBA(image.Rect(0, 0, w, h)), Width: w, Height: h}
}

type harness struct {
	enum     *countingEnum
	source   *fakeSource
	scorer   *fakeScorer
	exec     *fakeExecutor
	clock    *fakeClock
	reports  []IterationReport
	finished []Result
	started  []SearchInfo
}

func newHarness(monitors ...display.Monitor) *harness {
	return &harness{
		enum:   &countingEnum{monitors: monitors},
		source: newFakeSource(monitors...),
		scorer: newFakeScorer(),
		exec:   &fakeExecutor{},
		clock:  newFakeClock(),
	}
}

func (h *harness) loop(opts ...Option) *Loop {
	base := []Option{
		WithScorer(h.scorer),
		WithClock(h.clock),
		WithLogger(logging.Discard()),
		WithObserver(ObserverFuncs{
			OnStart:     func(i SearchInfo) { h.started = append(h.started, i) },
			OnIteration: func(r IterationReport) { h.reports = append(h.reports, r) },
			OnFinish:    func(r Result) { h.finished = append(h.finished, r) },
		}),
	}
	return New(h.enum, h.source, h.exec, append(base, opts...)...)
}

func (h *harness) frame(m display.Monitor) *image.RGBA {
	return h.source.frames[m]
}

func TestRunActsOnMatch(t *testing.T) {
	primary := display.NewMonitor(0, 0, 1920, 1080)
	h := newHarness(primary)
	tmpl := makeTemplate("accept_green", 41, 21)
	h.scorer.set(h.frame(primary), tmpl.Image, 0.95, image.Point{X: 100, Y: 200})

	result, err := h.loop().Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.State != StateActing || !result.Found() {
		t.Fatalf("expected acting state, got %s", result.State)
	}
	if result.Center != (image.Point{X: 120, Y: 210}) {
		t.Errorf("expected center (120,210), got %v", result.Center)
	}
	if result.BestScore != 0.95 || result.Iterations != 1 {
		t.Errorf("unexpected score/iterations: %f / %d", result.BestScore, result.Iterations)
	}
	if result.ActionErr != nil {
		t.Errorf("unexpected action error: %v", result.ActionErr)
	}

	want := []call{{op: "move", x: 120, y: 210}, {op: "click"}, {op: "key", key: "y"}}
	if len(h.exec.calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", h.exec.calls, want)
	}
	for i := range want {
		if h.exec.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, h.exec.calls[i], want[i])
		}
	}

	// settle delay elapsed between click and key
	if result.Elapsed != DefaultSettleDelay {
		t.Errorf("expected elapsed to equal settle delay, got %v", result.Elapsed)
	}
	if !strings.HasPrefix(result.Summary(), "found and acted at (120,210) with score 0.950") {
		t.Errorf("unexpected summary %q", result.Summary())
	}
	if result.RunID == "" || len(h.started) != 1 || h.started[0].RunID != result.RunID {
		t.Error("run id should be assigned and announced")
	}
}

func TestRunExpiresWhenBelowThreshold(t *testing.T) {
	primary := display.NewMonitor(0, 0, 1920, 1080)
	h := newHarness(primary)
	tmpl := makeTemplate("accept_green", 10, 10)
	h.scorer.set(h.frame(primary), tmpl.Image, 0.5, image.Point{X: 3, Y: 4})

	cfg := DefaultConfig()
	cfg.Timeout = 500 * time.Millisecond
	cfg.RetryInterval = 100 * time.Millisecond

	result, err := h.loop().Run(context.Background(), []templates.Template{tmpl}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.State != StateExpired || result.Found() {
		t.Fatalf("expected expired, got %s", result.State)
	}
	if result.Iterations != 5 {
		t.Errorf("expected 5 iterations, got %d", result.Iterations)
	}
	if result.BestScore != 0.5 {
		t.Errorf("expected best score 0.5, got %f", result.BestScore)
	}
	if len(h.exec.calls) != 0 {
		t.Errorf("executor must not be touched, got %+v", h.exec.calls)
	}
	if result.Summary() != "not found after timeout, best score seen = 0.500" {
		t.Errorf("unexpected summary %q", result.Summary())
	}
	if len(h.reports) != 5 || len(h.finished) != 1 {
		t.Errorf("expected 5 reports and 1 finish, got %d and %d", len(h.reports), len(h.finished))
	}
	if h.enum.calls != 1 {
		t.Errorf("monitors should be enumerated once per run, got %d", h.enum.calls)
	}
}

func TestRunNoMonitorsIsConfigurationError(t *testing.T) {
	h := newHarness()

	result, err := h.loop().Run(context.Background(), []templates.Template{makeTemplate("t", 5, 5)}, DefaultConfig())

	if !errors.Is(err, ErrNoMonitors) {
		t.Fatalf("expected ErrNoMonitors, got %v", err)
	}
	if result.Iterations != 0 || h.source.calls != 0 || len(h.exec.calls) != 0 {
		t.Error("no iteration or action may run without monitors")
	}
	if len(h.started) != 0 || len(h.finished) != 0 {
		t.Error("observers must not see a search that never started")
	}
}

func TestRunEnumerationFailureWrapsNoMonitors(t *testing.T) {
	h := newHarness()
	h.enum.err = errors.New("display server unavailable")

	_, err := h.loop().Run(context.Background(), []templates.Template{makeTemplate("t", 5, 5)}, DefaultConfig())
	if !errors.Is(err, ErrNoMonitors) {
		t.Errorf("expected wrapped ErrNoMonitors, got %v", err)
	}
}

func TestRunNoTemplates(t *testing.T) {
	h := newHarness(display.NewMonitor(0, 0, 100, 100))

	_, err := h.loop().Run(context.Background(), nil, DefaultConfig())

	if !errors.Is(err, ErrNoTemplates) {
		t.Fatalf("expected ErrNoTemplates, got %v", err)
	}
	if h.enum.calls != 0 || h.source.calls != 0 {
		t.Error("nothing should be enumerated or captured")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	h := newHarness(display.NewMonitor(0, 0, 100, 100))
	cfg := DefaultConfig()
	cfg.Threshold = 1.5

	_, err := h.loop().Run(context.Background(), []templates.Template{makeTemplate("t", 5, 5)}, cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunZeroTimeoutDoesNoWork(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	tmpl := makeTemplate("t", 5, 5)
	h.scorer.set(h.frame(m), tmpl.Image, 1.0, image.Point{})

	cfg := DefaultConfig()
	cfg.Timeout = 0

	result, err := h.loop().Run(context.Background(), []templates.Template{tmpl}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateExpired || result.Iterations != 0 {
		t.Errorf("expected immediate expiry, got %s after %d iterations", result.State, result.Iterations)
	}
	if h.source.calls != 0 || len(h.exec.calls) != 0 {
		t.Error("no capture or action may happen once the deadline has passed")
	}
	if result.BestScore != cv.NoScore {
		t.Errorf("expected NoScore, got %f", result.BestScore)
	}
}

func TestRunTieKeepsEarlierMonitor(t *testing.T) {
	left := display.NewMonitor(-1280, 0, 1280, 1024)
	right := display.NewMonitor(0, 0, 1920, 1080)
	tmpl := makeTemplate("button", 20, 10)

	for _, workers := range []int{1, 4} {
		h := newHarness(left, right)
		h.scorer.set(h.frame(left), tmpl.Image, 0.9, image.Point{X: 10, Y: 10})
		h.scorer.set(h.frame(right), tmpl.Image, 0.9, image.Point{X: 50, Y: 50})

		cfg := DefaultConfig()
		cfg.Workers = workers
		result, err := h.loop().Run(context.Background(), []templates.Template{tmpl}, cfg)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		if result.Best.MonitorIndex != 1 {
			t.Errorf("workers=%d: expected monitor 1, got %d", workers, result.Best.MonitorIndex)
		}
		if result.Center != (image.Point{X: -1280 + 10 + 10, Y: 15}) {
			t.Errorf("workers=%d: unexpected center %v", workers, result.Center)
		}
	}
}

func TestRunTieKeepsEarlierTemplate(t *testing.T) {
	m := display.NewMonitor(0, 0, 800, 600)
	h := newHarness(m)
	first := makeTemplate("first", 10, 10)
	second := makeTemplate("second", 10, 10)
	h.scorer.set(h.frame(m), first.Image, 0.88, image.Point{X: 1, Y: 1})
	h.scorer.set(h.frame(m), second.Image, 0.88, image.Point{X: 2, Y: 2})

	result, _ := h.loop().Run(context.Background(), []templates.Template{first, second}, DefaultConfig())
	if result.Best == nil || result.Best.Template != "first" {
		t.Errorf("expected first template to win the tie, got %+v", result.Best)
	}
}

func TestRunStrictlyGreaterLaterMonitorWins(t *testing.T) {
	a := display.NewMonitor(0, 0, 1920, 1080)
	b := display.NewMonitor(1920, 0, 1920, 1080)
	h := newHarness(a, b)
	tmpl := makeTemplate("t", 4, 4)
	h.scorer.set(h.frame(a), tmpl.Image, 0.90, image.Point{})
	h.scorer.set(h.frame(b), tmpl.Image, 0.91, image.Point{X: 8, Y: 6})

	result, _ := h.loop().Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
	if result.Best.MonitorIndex != 2 || result.Center != (image.Point{X: 1920 + 8 + 2, Y: 8}) {
		t.Errorf("expected monitor 2 at (1930,8), got monitor %d at %v", result.Best.MonitorIndex, result.Center)
	}
}

func TestRunThresholdIsInclusive(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	tmpl := makeTemplate("t", 4, 4)
	h.scorer.set(h.frame(m), tmpl.Image, 0.85, image.Point{})

	result, _ := h.loop().Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
	if !result.Found() {
		t.Error("a score equal to the threshold must be accepted")
	}
}

func TestRunSkipsFailedCapture(t *testing.T) {
	broken := display.NewMonitor(0, 0, 1920, 1080)
	healthy := display.NewMonitor(1920, 0, 1280, 1024)
	h := newHarness(broken, healthy)
	h.source.fail[broken] = true
	tmpl := makeTemplate("t", 10, 10)
	h.scorer.set(h.frame(healthy), tmpl.Image, 0.99, image.Point{X: 5, Y: 5})

	reporter := logging.NewErrorReporterWithLogger(logging.Discard())
	result, err := h.loop(WithErrorReporter(reporter)).Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Found() || result.Best.MonitorIndex != 2 {
		t.Fatalf("expected match on monitor 2, got %+v", result)
	}
	if h.reports[0].CaptureFailures != 1 || h.reports[0].Captured != 1 {
		t.Errorf("unexpected capture counts %+v", h.reports[0])
	}
	if got := reporter.GetErrorsByCategory(logging.ErrorCategoryCapture, 10); len(got) != 1 {
		t.Errorf("expected one capture error report, got %d", len(got))
	}
}

func TestRunAllCapturesFailing(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	h.source.fail[m] = true

	cfg := DefaultConfig()
	cfg.Timeout = 300 * time.Millisecond
	cfg.RetryInterval = 100 * time.Millisecond

	result, err := h.loop().Run(context.Background(), []templates.Template{makeTemplate("t", 4, 4)}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateExpired || result.Best != nil || result.BestScore != cv.NoScore {
		t.Errorf("expected expiry with no candidate, got %+v", result)
	}
	if result.Iterations != 3 {
		t.Errorf("expected 3 iterations, got %d", result.Iterations)
	}
}

func TestRunSkipsUnmatchedAndPanickingPairings(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	tooLarge := makeTemplate("too-large", 200, 200)
	broken := makeTemplate("broken", 4, 4)
	good := makeTemplate("good", 4, 4)
	h.scorer.panics[broken.Image] = true
	h.scorer.set(h.frame(m), good.Image, 0.9, image.Point{X: 1, Y: 1})

	result, err := h.loop().Run(context.Background(), []templates.Template{tooLarge, broken, good}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found() || result.Best.Template != "good" {
		t.Errorf("expected good template to be acted on, got %+v", result.Best)
	}
	if h.reports[0].ScoringFailures != 1 {
		t.Errorf("expected one scoring failure, got %d", h.reports[0].ScoringFailures)
	}
}

func TestRunActionFailuresKeepSuccess(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	tmpl := makeTemplate("t", 4, 4)

	t.Run("move fails", func(t *testing.T) {
		h := newHarness(m)
		h.scorer.set(h.frame(m), tmpl.Image, 0.99, image.Point{})
		h.exec.moveErr = errors.New("pointer locked")

		result, err := h.loop().Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.State != StateActing {
			t.Errorf("detection must still be reported as found, got %s", result.State)
		}
		if result.ActionErr == nil || !strings.Contains(result.ActionErr.Error(), "pointer locked") {
			t.Errorf("expected move error recorded, got %v", result.ActionErr)
		}
		ops := []string{}
		for _, c := range h.exec.calls {
			ops = append(ops, c.op)
		}
		if strings.Join(ops, ",") != "move,key" {
			t.Errorf("expected click skipped and key still sent, got %v", ops)
		}
	})

	t.Run("click and key fail", func(t *testing.T) {
		h := newHarness(m)
		h.scorer.set(h.frame(m), tmpl.Image, 0.99, image.Point{})
		clickErr := errors.New("click rejected")
		keyErr := errors.New("no keyboard")
		h.exec.clickErr = clickErr
		h.exec.keyErr = keyErr

		result, _ := h.loop().Run(context.Background(), []templates.Template{tmpl}, DefaultConfig())
		if !result.Found() {
			t.Error("detection must still be reported as found")
		}
		if !errors.Is(result.ActionErr, clickErr) || !errors.Is(result.ActionErr, keyErr) {
			t.Errorf("expected both errors joined, got %v", result.ActionErr)
		}
		if len(h.exec.calls) != 3 {
			t.Errorf("every step should still be attempted, got %+v", h.exec.calls)
		}
	})
}

func TestRunCancelledBeforeStart(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.loop().Run(ctx, []templates.Template{makeTemplate("t", 4, 4)}, DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.State != StateAborted || result.Iterations != 0 || h.source.calls != 0 {
		t.Errorf("expected abort before any work, got %+v", result)
	}
}

func TestRunCancelledBetweenIterations(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := h.loop(WithObserver(ObserverFuncs{
		OnIteration: func(r IterationReport) {
			if r.Number == 2 {
				cancel()
			}
		},
	}))

	result, err := loop.Run(ctx, []templates.Template{makeTemplate("t", 4, 4)}, DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.State != StateAborted || result.Iterations != 2 {
		t.Errorf("expected abort after 2 iterations, got %s after %d", result.State, result.Iterations)
	}
	if !strings.HasPrefix(result.Summary(), "aborted after 2 iterations") {
		t.Errorf("unexpected summary %q", result.Summary())
	}
}

func TestRunReportsBestAcrossIterations(t *testing.T) {
	m := display.NewMonitor(0, 0, 100, 100)
	h := newHarness(m)
	tmpl := makeTemplate("t", 4, 4)
	h.scorer.set(h.frame(m), tmpl.Image, 0.4, image.Point{})

	cfg := DefaultConfig()
	cfg.Timeout = 400 * time.Millisecond
	cfg.RetryInterval = 100 * time.Millisecond

	loop := h.loop(WithObserver(ObserverFuncs{
		OnIteration: func(r IterationReport) {
			// the screen changes after the second pass
			if r.Number == 2 {
				h.scorer.set(h.frame(m), tmpl.Image, 0.7, image.Point{X: 9, Y: 9})
			}
			if r.Number == 3 {
				h.scorer.set(h.frame(m), tmpl.Image, 0.6, image.Point{})
			}
		},
	}))

	result, _ := loop.Run(context.Background(), []templates.Template{tmpl}, cfg)
	if result.State != StateExpired {
		t.Fatalf("expected expiry, got %s", result.State)
	}
	if result.BestScore != 0.7 || result.Best.Offset != (image.Point{X: 9, Y: 9}) {
		t.Errorf("expected best of all iterations (0.7 at 9,9), got %f at %v", result.BestScore, result.Best.Offset)
	}

	scores := []float64{}
	for _, r := range h.reports {
		scores = append(scores, r.BestScore())
	}
	want := []float64{0.4, 0.4, 0.7, 0.6}
	if len(scores) != len(want) {
		t.Fatalf("scores = %v, want %v", scores, want)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("iteration %d best = %f, want %f", i+1, scores[i], want[i])
		}
	}
}

func TestFold(t *testing.T) {
	slots := []slot{
		{},
		{candidate: Candidate{Template: "a", Score: 0.3}, ok: true},
		{candidate: Candidate{Template: "b", Score: 0.7}, ok: true},
		{candidate: Candidate{Template: "c", Score: 0.7}, ok: true},
		{candidate: Candidate{Template: "d", Score: -0.2}, ok: true},
	}
	best, ok := fold(slots)
	if !ok || best.Template != "b" {
		t.Errorf("expected b, got %+v", best)
	}

	if _, ok := fold([]slot{{}, {}}); ok {
		t.Error("empty slots must not produce a candidate")
	}
}

func TestCandidateCenterRoundsDown(t *testing.T) {
	c := Candidate{Monitor: display.NewMonitor(-1920, -100, 1920, 1080), Offset: image.Point{X: 10, Y: 20}, Width: 5, Height: 7}
	if got := c.Center(); got != (image.Point{X: -1920 + 10 + 2, Y: -100 + 20 + 3}) {
		t.Errorf("unexpected center %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, true},
		{"threshold above one", func(c *Config) { c.Threshold = 1.01 }, false},
		{"negative threshold", func(c *Config) { c.Threshold = -0.1 }, false},
		{"negative retry", func(c *Config) { c.RetryInterval = -time.Millisecond }, false},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, false},
		{"empty key", func(c *Config) { c.ConfirmKey = "" }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Threshold != 0.85 || cfg.RetryInterval != 120*time.Millisecond || cfg.Timeout != 6*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
