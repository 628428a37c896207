package acquire

import (
	"fmt"
	"image"
	"time"

	"jordanella.com/autoclick-go/internal/cv"
	"jordanella.com/autoclick-go/internal/display"
)

// State is the position of a search in its state machine
type State string

const (
	StateSearching State = "searching"
	StateActing    State = "acting"
	StateExpired   State = "expired"
	StateAborted   State = "aborted"
)

// Candidate is one scored (monitor, template) pairing
type Candidate struct {
	Template      string          `json:"template"`
	TemplateIndex int             `json:"template_index"`
	Monitor       display.Monitor `json:"monitor"`
	MonitorIndex  int             `json:"monitor_index"` // 1-based
	Offset        image.Point     `json:"offset"`        // top-left within the frame
	Score         float64         `json:"score"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
}

// Center returns the template's center in virtual-desktop coordinates.
// Half pixels round toward the top-left.
func (c Candidate) Center() image.Point {
	return image.Point{
		X: c.Monitor.Left + c.Offset.X + c.Width/2,
		Y: c.Monitor.Top + c.Offset.Y + c.Height/2,
	}
}

// SearchInfo describes a search at the moment it enters SEARCHING
type SearchInfo struct {
	RunID     string
	Templates []string
	Monitors  []display.Monitor
	Config    Config
	StartedAt time.Time
}

// IterationReport is published after every complete iteration
type IterationReport struct {
	RunID           string
	Number          int
	Best            *Candidate
	Center          image.Point
	Captured        int
	CaptureFailures int
	ScoringFailures int
	Accepted        bool
	Elapsed         time.Duration
}

// BestScore returns the iteration's best score or cv.NoScore
func (r IterationReport) BestScore() float64 {
	if r.Best == nil {
		return cv.NoScore
	}
	return r.Best.Score
}

// Result is the terminal outcome of a search
type Result struct {
	RunID      string
	State      State
	Best       *Candidate // acted-on candidate, or best seen when not found
	Center     image.Point
	BestScore  float64
	Iterations int
	Elapsed    time.Duration

	// ActionErr records input failures after a match. It never changes State.
	ActionErr error
}

// Found reports whether a target was detected
func (r Result) Found() bool {
	return r.State == StateActing
}

// Summary renders the user-visible outcome line
func (r Result) Summary() string {
	switch r.State {
	case StateActing:
		return fmt.Sprintf("found and acted at (%d,%d) with score %.3f", r.Center.X, r.Center.Y, r.BestScore)
	case StateAborted:
		return fmt.Sprintf("aborted after %d iterations, best score seen = %.3f", r.Iterations, r.BestScore)
	default:
		return fmt.Sprintf("not found after timeout, best score seen = %.3f", r.BestScore)
	}
}
