package input

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"
)

var ErrEmptyKey = errors.New("key name cannot be empty")

// Pointer reports the current cursor position in virtual-desktop coordinates
type Pointer interface {
	Position() (x, y int, err error)
}

// Clipboard writes text to the system clipboard
type Clipboard interface {
	Copy(text string) error
}

// Robot drives the local pointer, keyboard and clipboard. Calls are
// serialized because the native layer is not safe for concurrent use.
type Robot struct {
	mu sync.Mutex

	move     func(x, y int)
	click    func()
	keyTap   func(key string) error
	location func() (int, int)
	writeAll func(text string) error
}

// NewRobot creates a robot backed by the OS input APIs
func NewRobot() *Robot {
	return &Robot{
		move:     func(x, y int) { robotgo.Move(x, y) },
		click:    func() { robotgo.Click("left", false) },
		keyTap:   func(key string) error { return robotgo.KeyTap(key) },
		location: robotgo.Location,
		writeAll: robotgo.WriteAll,
	}
}

// MoveTo places the pointer at (x, y)
func (r *Robot) MoveTo(x, y int) error {
	return r.guard(fmt.Sprintf("move to (%d,%d)", x, y), func() error {
		r.move(x, y)
		return nil
	})
}

// Click issues a primary button click at the current position
func (r *Robot) Click() error {
	return r.guard("click", func() error {
		r.click()
		return nil
	})
}

// PressKey taps a single key by name, e.g. "y" or "enter"
func (r *Robot) PressKey(name string) error {
	key := NormalizeKey(name)
	if key == "" {
		return ErrEmptyKey
	}
	return r.guard("press "+key, func() error {
		return r.keyTap(key)
	})
}

// Position returns the current cursor location
func (r *Robot) Position() (x, y int, err error) {
	err = r.guard("read pointer", func() error {
		x, y = r.location()
		return nil
	})
	return x, y, err
}

// Copy places text on the clipboard
func (r *Robot) Copy(text string) error {
	return r.guard("copy to clipboard", func() error {
		return r.writeAll(text)
	})
}

// guard serializes a native call and converts panics into errors
func (r *Robot) guard(op string, fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: native input panic: %v", op, rec)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// keyAliases maps common spellings to the names the input layer expects
var keyAliases = map[string]string{
	"return": "enter",
	"esc":    "escape",
	"del":    "delete",
	"bksp":   "backspace",
	"spc":    "space",
	"pgup":   "pageup",
	"pgdn":   "pagedown",
}

// NormalizeKey lower-cases a key name and resolves common aliases
func NormalizeKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}
