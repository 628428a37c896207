package display

import (
	"github.com/kbinani/screenshot"
)

// ScreenEnumerator lists the active displays reported by the OS
type ScreenEnumerator struct{}

// NewScreenEnumerator creates an enumerator backed by the OS display list
func NewScreenEnumerator() *ScreenEnumerator {
	return &ScreenEnumerator{}
}

// Monitors returns active displays in OS order, skipping zero-area entries
func (e *ScreenEnumerator) Monitors() ([]Monitor, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoMonitors
	}

	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		m := FromRectangle(screenshot.GetDisplayBounds(i))
		if !m.Valid() {
			continue
		}
		monitors = append(monitors, m)
	}

	if len(monitors) == 0 {
		return nil, ErrNoMonitors
	}
	return monitors, nil
}
