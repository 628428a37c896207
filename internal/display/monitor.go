package display

import (
	"errors"
	"fmt"
	"image"
)

// None is returned by Locate when no monitor contains the point
const None = 0

// ErrNoMonitors is returned when enumeration finds no usable display
var ErrNoMonitors = errors.New("no monitors detected")

// Monitor is a display rectangle in virtual-desktop pixel coordinates.
// Left/Top may be negative (a display placed left of or above the primary).
type Monitor struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Enumerator lists the connected monitors in a stable order
type Enumerator interface {
	Monitors() ([]Monitor, error)
}

// NewMonitor creates a monitor from its top-left corner and size
func NewMonitor(left, top, width, height int) Monitor {
	return Monitor{Left: left, Top: top, Width: width, Height: height}
}

// FromRectangle converts an image.Rectangle to a Monitor
func FromRectangle(r image.Rectangle) Monitor {
	return Monitor{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Bounds returns the monitor rectangle
func (m Monitor) Bounds() image.Rectangle {
	return image.Rect(m.Left, m.Top, m.Left+m.Width, m.Top+m.Height)
}

// Valid reports whether the monitor has a positive area
func (m Monitor) Valid() bool {
	return m.Width > 0 && m.Height > 0
}

// Contains checks if a point lies inside the monitor.
// Left and top edges are inclusive, right and bottom edges are exclusive.
func (m Monitor) Contains(x, y int) bool {
	return x >= m.Left && y >= m.Top && x < m.Left+m.Width && y < m.Top+m.Height
}

func (m Monitor) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", m.Width, m.Height, m.Left, m.Top)
}

// Locate returns the 1-based index of the first monitor containing (x, y),
// or None if the point is outside every monitor.
func Locate(x, y int, monitors []Monitor) int {
	for i, m := range monitors {
		if m.Contains(x, y) {
			return i + 1
		}
	}
	return None
}

// Static is an Enumerator over a fixed monitor list
type Static []Monitor

// Monitors returns a copy of the fixed list
func (s Static) Monitors() ([]Monitor, error) {
	out := make([]Monitor, len(s))
	copy(out, s)
	return out, nil
}

// Changed reports whether two enumeration snapshots differ in count, order or geometry
func Changed(before, after []Monitor) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}
	return false
}
