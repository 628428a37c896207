package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jordanella.com/autoclick-go/internal/database"
	"jordanella.com/autoclick-go/internal/display"
)

type fakeFrames struct{ frame *image.RGBA }

func (f fakeFrames) Capture(m display.Monitor) (*image.RGBA, error) {
	return f.frame, nil
}

type fakeDesktop struct {
	calls  []string
	x, y   int
	copied string
}

func (d *fakeDesktop) MoveTo(x, y int) error {
	d.calls = append(d.calls, fmt.Sprintf("move %d,%d", x, y))
	return nil
}

func (d *fakeDesktop) Click() error {
	d.calls = append(d.calls, "click")
	return nil
}

func (d *fakeDesktop) PressKey(name string) error {
	d.calls = append(d.calls, "key "+name)
	return nil
}

func (d *fakeDesktop) Position() (int, int, error) { return d.x, d.y, nil }

func (d *fakeDesktop) Copy(text string) error {
	d.copied = text
	return nil
}

func noise(w, h int, seed uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	state := seed
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			state = state*1664525 + 1013904223
			img.SetRGBA(x, y, color.RGBA{uint8(state >> 24), uint8(state >> 16), uint8(state >> 8), 255})
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

type harness struct {
	app     *app
	desktop *fakeDesktop
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	dir     string
	button  string // template cut from the frame at (50,30), 20x10
	other   string // template absent from the frame
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	frame := noise(200, 100, 7)

	h := &harness{
		desktop: &fakeDesktop{x: -10, y: 5},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		dir:     dir,
	}
	h.button = writePNG(t, dir, "button.png", frame.SubImage(image.Rect(50, 30, 70, 40)))
	h.other = writePNG(t, dir, "other.png", noise(20, 10, 99))

	a := newApp()
	a.stdout, a.stderr = h.stdout, h.stderr
	a.monitors = display.Static{display.NewMonitor(1920, 0, 200, 100), display.NewMonitor(-1280, 0, 1280, 1024)}
	a.frames = fakeFrames{frame: frame}
	a.desktop = h.desktop
	a.notify = nil
	h.app = a
	return h
}

func (h *harness) run(args ...string) int {
	return execute(h.app, args)
}

func TestFindClicksBestMatch(t *testing.T) {
	h := newHarness(t)

	code := h.run("find", h.other, h.button, "--timeout", "2s", "--settle", "0s", "--key", "Return")
	if code != exitFound {
		t.Fatalf("expected exit %d, got %d; stderr=%s", exitFound, code, h.stderr.String())
	}

	want := "move 1980,35,click,key Return"
	if got := strings.Join(h.desktop.calls, ","); got != want {
		t.Errorf("expected calls %q, got %q", want, got)
	}
	if !strings.Contains(h.stdout.String(), "found and acted at (1980,35) with score 1.000") {
		t.Errorf("unexpected output %q", h.stdout.String())
	}
}

func TestRootRunsFind(t *testing.T) {
	h := newHarness(t)

	if code := h.run(h.button, "--settle", "0s"); code != exitFound {
		t.Fatalf("expected exit %d, got %d; stderr=%s", exitFound, code, h.stderr.String())
	}
	if len(h.desktop.calls) != 3 {
		t.Errorf("expected move, click and key, got %v", h.desktop.calls)
	}
}

func TestFindNotFound(t *testing.T) {
	h := newHarness(t)

	code := h.run("find", h.other, "--timeout", "0s")
	if code != exitNotFound {
		t.Fatalf("expected exit %d, got %d", exitNotFound, code)
	}
	if len(h.desktop.calls) != 0 {
		t.Errorf("expected no input, got %v", h.desktop.calls)
	}
	out := h.stdout.String()
	if !strings.HasPrefix(out, "\a") || !strings.Contains(out, "not found after timeout") {
		t.Errorf("expected bell and miss summary, got %q", out)
	}
}

func TestFindAborted(t *testing.T) {
	h := newHarness(t)
	h.app.notify = func(c chan<- os.Signal) { c <- os.Interrupt }

	code := h.run("find", h.other, "--timeout", "30s", "--threshold", "0.99")
	if code != exitAborted {
		t.Fatalf("expected exit %d, got %d", exitAborted, code)
	}
	if !strings.Contains(h.stdout.String(), "aborted after") {
		t.Errorf("unexpected output %q", h.stdout.String())
	}
}

func TestFindConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args func(h *harness) []string
		want string
	}{
		{"threshold", func(h *harness) []string { return []string{"find", h.button, "--threshold", "1.5"} }, "threshold"},
		{"no templates", func(h *harness) []string { return []string{"find", filepath.Join(h.dir, "missing.png")} }, "no valid images"},
		{"bad config", func(h *harness) []string { return []string{"find", "--config", filepath.Join(h.dir, "nope.yaml")} }, "config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if code := h.run(tt.args(h)...); code != exitConfig {
				t.Fatalf("expected exit %d, got %d", exitConfig, code)
			}
			if !strings.Contains(h.stderr.String(), tt.want) {
				t.Errorf("expected %q in stderr, got %q", tt.want, h.stderr.String())
			}
		})
	}
}

func TestFindUsesConfigFile(t *testing.T) {
	h := newHarness(t)
	cfg := filepath.Join(h.dir, "Settings.ini")
	content := fmt.Sprintf("[Search]\nTemplates = %s\nSettleMs = 0\nConfirmKey = n\n", h.button)
	if err := os.WriteFile(cfg, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if code := h.run("--config", cfg); code != exitFound {
		t.Fatalf("expected exit %d, got %d; stderr=%s", exitFound, code, h.stderr.String())
	}
	if got := h.desktop.calls[len(h.desktop.calls)-1]; got != "key n" {
		t.Errorf("expected configured key, got %q", got)
	}
}

func TestFindWithManifest(t *testing.T) {
	h := newHarness(t)
	manifest := filepath.Join(h.dir, "templates.yaml")
	content := "templates:\n  - name: accept\n    path: button.png\n"
	if err := os.WriteFile(manifest, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if code := h.run("find", "--manifest", manifest, "--settle", "0s"); code != exitFound {
		t.Fatalf("expected exit %d, got %d; stderr=%s", exitFound, code, h.stderr.String())
	}
}

func TestFindDirOverridesSettingsManifest(t *testing.T) {
	h := newHarness(t)
	manifest := filepath.Join(h.dir, "templates.yaml")
	if err := os.WriteFile(manifest, []byte("templates:\n  - name: other\n    path: other.png\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(h.dir, "Settings.ini")
	if err := os.WriteFile(cfg, []byte(fmt.Sprintf("[Search]\nManifest = %s\nSettleMs = 0\n", manifest)), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(h.dir, "buttons")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, sub, "button.png", noise(200, 100, 7).SubImage(image.Rect(50, 30, 70, 40)))

	if code := h.run("find", "--config", cfg, "--dir", sub, "--timeout", "2s"); code != exitFound {
		t.Fatalf("expected exit %d, got %d; stderr=%s", exitFound, code, h.stderr.String())
	}
	if !strings.Contains(h.stdout.String(), "found and acted") {
		t.Errorf("unexpected output %q", h.stdout.String())
	}
}

func TestFindRejectsManifestAndDir(t *testing.T) {
	h := newHarness(t)
	code := h.run("find", "--manifest", filepath.Join(h.dir, "templates.yaml"), "--dir", h.dir)
	if code != exitConfig {
		t.Fatalf("expected exit %d, got %d", exitConfig, code)
	}
	if !strings.Contains(h.stderr.String(), "mutually exclusive") {
		t.Errorf("unexpected stderr %q", h.stderr.String())
	}
}

func TestJournalAndHistory(t *testing.T) {
	h := newHarness(t)
	journal := filepath.Join(h.dir, "runs.db")

	if code := h.run("find", h.button, "--settle", "0s", "--journal", journal); code != exitFound {
		t.Fatalf("find: exit %d; stderr=%s", code, h.stderr.String())
	}
	if code := h.run("find", h.other, "--timeout", "0s", "--journal", journal); code != exitNotFound {
		t.Fatalf("find: exit %d; stderr=%s", code, h.stderr.String())
	}

	h.stdout.Reset()
	if code := h.run("history", "--journal", journal); code != exitFound {
		t.Fatalf("history: exit %d; stderr=%s", code, h.stderr.String())
	}
	out := h.stdout.String()
	for _, want := range []string{"STATE", "acting", "expired", "button", "(1980,35)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in history output:\n%s", want, out)
		}
	}
}

func TestHistorySummaryRunAndPrune(t *testing.T) {
	h := newHarness(t)
	journal := filepath.Join(h.dir, "runs.db")

	if code := h.run("find", h.button, "--settle", "0s", "--journal", journal); code != exitFound {
		t.Fatalf("find: exit %d; stderr=%s", code, h.stderr.String())
	}
	if code := h.run("find", h.other, "--timeout", "0s", "--journal", journal); code != exitNotFound {
		t.Fatalf("find: exit %d; stderr=%s", code, h.stderr.String())
	}

	h.stdout.Reset()
	if code := h.run("history", "--journal", journal, "--summary"); code != exitFound {
		t.Fatalf("summary: exit %d; stderr=%s", code, h.stderr.String())
	}
	out := h.stdout.String()
	for _, want := range []string{"AVG ITERATIONS", "acting", "expired", "2 runs"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in summary output:\n%s", want, out)
		}
	}

	db, err := database.Open(journal)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := db.RecentRuns(10)
	db.Close()
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected 2 journaled runs, got %d (%v)", len(runs), err)
	}
	var found string
	for _, r := range runs {
		if r.State == "acting" {
			found = r.RunID
		}
	}

	h.stdout.Reset()
	if code := h.run("history", "--journal", journal, "--run", found); code != exitFound {
		t.Fatalf("run: exit %d; stderr=%s", code, h.stderr.String())
	}
	if out := h.stdout.String(); !strings.Contains(out, "Run "+found+": acting after 1 iterations") || !strings.Contains(out, "button") {
		t.Errorf("unexpected run output:\n%s", out)
	}

	if code := h.run("history", "--journal", journal, "--run", "missing"); code != exitConfig {
		t.Errorf("expected exit %d for unknown run, got %d", exitConfig, code)
	}

	h.stdout.Reset()
	if code := h.run("history", "--journal", journal, "--prune", "1ns"); code != exitFound {
		t.Fatalf("prune: exit %d; stderr=%s", code, h.stderr.String())
	}
	if out := h.stdout.String(); !strings.Contains(out, "Pruned 2 runs") || !strings.Contains(out, "0 runs, 0 iterations") {
		t.Errorf("unexpected prune output:\n%s", out)
	}
}

func TestHistoryRequiresJournal(t *testing.T) {
	h := newHarness(t)
	if code := h.run("history"); code != exitConfig {
		t.Fatalf("expected exit %d, got %d", exitConfig, code)
	}
	if !strings.Contains(h.stderr.String(), "no journal configured") {
		t.Errorf("unexpected stderr %q", h.stderr.String())
	}
}

func TestMonitorsCommand(t *testing.T) {
	h := newHarness(t)
	if code := h.run("monitors"); code != exitFound {
		t.Fatalf("exit %d", code)
	}
	want := "Monitor 1: 200x100@(1920,0)\nMonitor 2: 1280x1024@(-1280,0)\n"
	if h.stdout.String() != want {
		t.Errorf("expected %q, got %q", want, h.stdout.String())
	}
}

func TestWhereCopy(t *testing.T) {
	h := newHarness(t)
	if code := h.run("where", "--copy"); code != exitFound {
		t.Fatalf("exit %d; stderr=%s", code, h.stderr.String())
	}
	if h.desktop.copied != "-10,5" {
		t.Errorf("expected clipboard -10,5, got %q", h.desktop.copied)
	}
	want := "Copied: -10,5\nX: -10  Y: 5  Monitor: 2\n"
	if h.stdout.String() != want {
		t.Errorf("expected %q, got %q", want, h.stdout.String())
	}
}

func TestWhereOutsideMonitors(t *testing.T) {
	h := newHarness(t)
	h.desktop.x, h.desktop.y = 5000, 5000
	if code := h.run("where"); code != exitFound {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(h.stdout.String(), "Monitor: none") {
		t.Errorf("unexpected output %q", h.stdout.String())
	}
}
